package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/archive/internal/filter"
	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// RecordList is the body of GET /api/records.
type RecordList struct {
	Documents []schema.Record `json:"documents"`
	Total     int             `json:"total"`
}

// DeleteRequest is the body of POST /api/records/delete.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// listQueries builds store queries from the request's filter parameters
// plus optional limit and offset.
func listQueries(r *http.Request) []string {
	queries := filter.Queries(filter.FromValues(r.URL.Query()))
	if n := parseIntParam(r, "limit", 0); n > 0 {
		queries = append(queries, store.Limit(n))
	}
	if n := parseIntParam(r, "offset", 0); n > 0 {
		queries = append(queries, store.Offset(n))
	}
	return queries
}

// handleListRecords returns the records matching the search and filter.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	res := s.gateway.List(r.Context(), listQueries(r))
	if !res.Success {
		s.respondError(w, r, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, RecordList{Documents: res.Data, Total: res.Total})
}

// handleGetRecord returns one record for the edit form.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	res := s.gateway.Get(r.Context(), chi.URLParam(r, "id"))
	if !res.Success {
		s.respondError(w, r, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, res.Data)
}

// readFields decodes, trims and validates the five record fields.
func (s *Server) readFields(w http.ResponseWriter, r *http.Request) (schema.Fields, bool) {
	var fields schema.Fields
	if err := decodeJSON(w, r, &fields); err != nil {
		s.respondErrorStatus(w, r, err, badRequestStatus(err))
		return schema.Fields{}, false
	}
	fields = fields.Trimmed()
	if err := fields.Validate(); err != nil {
		s.respondError(w, r, err)
		return schema.Fields{}, false
	}
	return fields, true
}

// handleCreateRecord creates a record from the form.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readFields(w, r)
	if !ok {
		return
	}

	res := s.gateway.Create(r.Context(), fields)
	if !res.Success {
		s.respondError(w, r, res.Err())
		return
	}
	writeJSON(w, http.StatusCreated, res.Data)
}

// handleUpdateRecord replaces the five fields of a record.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readFields(w, r)
	if !ok {
		return
	}

	res := s.gateway.Update(r.Context(), chi.URLParam(r, "id"), fields)
	if !res.Success {
		s.respondError(w, r, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, res.Data)
}

// handleDeleteRecord deletes one record.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	res := s.gateway.Delete(r.Context(), chi.URLParam(r, "id"))
	if !res.Success {
		s.respondError(w, r, res.Err())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteRecords deletes the selected records. The response lists
// every failed id; the status is 200 only when all deletes succeeded.
func (s *Server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorStatus(w, r, err, badRequestStatus(err))
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "no records selected")
		return
	}

	res := s.gateway.DeleteMany(r.Context(), req.IDs)
	if !res.Success {
		status := statusFor(res.Err())
		s.logError(r, res.Err(), status)
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// badRequestStatus maps decoding errors to 400 unless a more specific
// status applies (oversized bodies).
func badRequestStatus(err error) int {
	if status := statusFor(err); status != http.StatusInternalServerError {
		return status
	}
	return http.StatusBadRequest
}
