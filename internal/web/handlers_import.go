package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/archive/internal/filearchive"
	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/ingest"
	"github.com/JonMunkholm/archive/internal/logging"
	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/staging"
)

const (
	// multipartMemory is how much of a multipart form is kept in memory.
	multipartMemory = 8 << 20
	// multipartOverhead is allowed on top of the file size limit.
	multipartOverhead = 1 << 20
	// sseHeartbeat keeps idle proxies from closing the progress stream.
	sseHeartbeat = 15 * time.Second
)

// ImportResponse describes a staged upload.
type ImportResponse struct {
	Session    *staging.Session `json:"session"`
	Format     ingest.Format    `json:"format"`
	Headers    []string         `json:"headers"`
	ArchiveKey string           `json:"archiveKey,omitempty"`
}

// CellEdit is the body of PATCH /api/imports/{sessionID}/cells.
type CellEdit struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// CommitRequest is the body of POST /api/imports/{sessionID}/commit.
type CommitRequest struct {
	Strategy string `json:"strategy"`
}

// CommitResponse acknowledges a started run.
type CommitResponse struct {
	RunID    string            `json:"runId"`
	Strategy importer.Strategy `json:"strategy"`
	Progress string            `json:"progress"`
}

// handleUploadImport validates and parses an uploaded spreadsheet and stages
// its rows for review. Nothing is written to the store yet.
func (s *Server) handleUploadImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondErrorStatus(w, r, fmt.Errorf("invalid upload form: %w", err), badRequestStatus(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondErrorStatus(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	format, err := ingest.ValidateMediaType(header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, err := ingest.ReadAll(file, maxSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := ingest.Parse(data, format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	log := logging.WithFields(ctx, "file", header.Filename, "checksum", result.Checksum)

	// Archiving the source file is best effort; a failure does not block the import.
	key, err := s.archiver.Archive(ctx, filearchive.File{
		Name:        header.Filename,
		ContentType: format.ContentType(),
		Checksum:    result.Checksum,
		Data:        data,
	})
	if err != nil {
		log.Warn("source file not archived", "error", err)
	}

	sess := s.staging.Create(header.Filename, result.Checksum, result.Rows)
	log.Info("import staged",
		"session_id", sess.ID,
		"format", format,
		"rows", len(result.Rows),
		"size", result.Size,
	)

	writeJSON(w, http.StatusCreated, ImportResponse{
		Session:    sess,
		Format:     result.Format,
		Headers:    result.Headers,
		ArchiveKey: key,
	})
}

// handleGetImport returns a staged session.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.staging.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleEditCell overwrites one cell of a staged row.
func (s *Server) handleEditCell(w http.ResponseWriter, r *http.Request) {
	var edit CellEdit
	if err := decodeJSON(w, r, &edit); err != nil {
		s.respondErrorStatus(w, r, err, badRequestStatus(err))
		return
	}

	field, ok := schema.ParseField(edit.Field)
	if !ok {
		s.respondErrorStatus(w, r, fmt.Errorf("unknown field %q", edit.Field), http.StatusBadRequest)
		return
	}

	row, err := s.staging.SetCell(chi.URLParam(r, "sessionID"), edit.Row, field, edit.Value)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, staging.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.respondErrorStatus(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleReplaceRow overwrites a whole staged row with the posted fields.
func (s *Server) handleReplaceRow(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		s.respondErrorStatus(w, r, fmt.Errorf("invalid row %q", chi.URLParam(r, "row")), http.StatusBadRequest)
		return
	}

	var fields schema.CandidateRow
	if err := decodeJSON(w, r, &fields); err != nil {
		s.respondErrorStatus(w, r, err, badRequestStatus(err))
		return
	}

	if err := s.staging.ReplaceRow(chi.URLParam(r, "sessionID"), row, fields); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, staging.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.respondErrorStatus(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

// handleDiscardImport drops a staged session.
func (s *Server) handleDiscardImport(w http.ResponseWriter, r *http.Request) {
	s.staging.Delete(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// handleCommitImport starts an import run from a staged session. The session
// is kept when the run cannot start so the user can retry.
func (s *Server) handleCommitImport(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorStatus(w, r, err, badRequestStatus(err))
		return
	}

	strategy, err := importer.ParseStrategy(req.Strategy)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	runID, err := s.staging.Commit(r.Context(), sessionID, strategy, s.importer)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import committed",
		"session_id", sessionID,
		"run_id", runID,
		"strategy", strategy,
	)
	writeJSON(w, http.StatusAccepted, CommitResponse{
		RunID:    runID,
		Strategy: strategy,
		Progress: "/api/progress",
	})
}

// handleCurrentProgress returns the latest progress value.
func (s *Server) handleCurrentProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.importer.Current())
}

// handleResetProgress returns progress to idle. It does not cancel a run.
func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.importer.Reset())
}

// handleCancelImport cancels the active run.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.importer.Cancel(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleProgressStream streams progress via Server-Sent Events. Each event id
// is the progress sequence number; a reconnecting client sends Last-Event-ID
// (or lastEventId) and skips values it has already seen. The stream sends
// "complete" once a run finishes after the client connected.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	resumeFrom := lastEventID(r)

	updates, unsubscribe := s.importer.Progress().Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		logging.FromContext(r.Context()).Error("streaming not supported", "error", err)
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	// The first value is the one current at subscribe time.
	connectedAt, first := uint64(0), true
	for {
		select {
		case p, ok := <-updates:
			if !ok {
				writeComplete(w, rc)
				return
			}
			if first {
				connectedAt, first = p.Seq, false
			}
			if p.Seq <= resumeFrom {
				continue
			}

			data, _ := json.Marshal(p)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.Seq, data)
			if err := rc.Flush(); err != nil {
				return
			}

			if p.Finished() && p.Seq > connectedAt {
				writeComplete(w, rc)
				return
			}

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

func writeComplete(w http.ResponseWriter, rc *http.ResponseController) {
	fmt.Fprint(w, "event: complete\ndata: {}\n\n")
	_ = rc.Flush()
}

// lastEventID reads the resume position. 0 replays the current value.
func lastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
