package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/archive/internal/apperr"
	"github.com/JonMunkholm/archive/internal/filter"
	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/ingest"
	"github.com/JonMunkholm/archive/internal/web/templates"
)

// readyTimeout bounds the store ping of /readyz.
const readyTimeout = 2 * time.Second

// handleIndex redirects to the archive page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/archive", http.StatusFound)
}

// handleArchivePage renders the listing. A failed listing still renders the
// page with the error shown above an empty table.
func (s *Server) handleArchivePage(w http.ResponseWriter, r *http.Request) {
	state := filter.FromValues(r.URL.Query())
	data := templates.ArchivePageData{
		Filter:   state,
		Progress: s.importer.Current(),
	}

	res := s.gateway.List(r.Context(), filter.Queries(state))
	if res.Success {
		data.Records = res.Data
		data.Total = res.Total
	} else {
		data.Error = apperr.FormatUserError(res.Err())
		s.logError(r, res.Err(), http.StatusBadGateway)
	}

	s.render(w, r, templates.ArchivePage(data))
}

// handleStagingPage renders the review grid of a staged upload.
func (s *Server) handleStagingPage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.staging.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.render(w, r, templates.StagingPage(sess, s.importer.Current()))
}

// render buffers the page so a render error can still produce a 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(r.Context(), &buf); err != nil {
		s.respondErrorStatus(w, r, fmt.Errorf("render page: %w", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// exportFormat reads the format query parameter (default xlsx).
func exportFormat(r *http.Request) (ingest.Format, error) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		return ingest.FormatXLSX, nil
	}
	f, ok := ingest.ParseFormat(raw)
	if !ok {
		return "", fmt.Errorf("unknown export format %q", raw)
	}
	return f, nil
}

// handleDownloadTemplate returns an empty spreadsheet holding only the
// import header row.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := ingest.Export(&buf, format, nil); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="arxiv_template.%s"`, format))
	_, _ = buf.WriteTo(w)
}

// handleExport downloads the records matching the filter as xlsx or csv,
// with the import header row so the file can be imported again.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := filter.FromValues(r.URL.Query())
	res := s.gateway.List(r.Context(), filter.Queries(state))
	if !res.Success {
		s.respondError(w, r, res.Err())
		return
	}

	var buf bytes.Buffer
	if err := ingest.Export(&buf, format, res.Data); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}

	filename := fmt.Sprintf("arxiv_%s.%s", time.Now().Format("20060102_150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	_, _ = buf.WriteTo(w)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyResponse is the body of /readyz.
type ReadyResponse struct {
	Status   string                 `json:"status"`
	Store    string                 `json:"store"`
	Error    string                 `json:"error,omitempty"`
	Importer importer.LimiterStatus `json:"importer"`
	Staged   int                    `json:"staged"`
	Watchers int                    `json:"watchers"`
}

// handleReady reports whether the document store is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := ReadyResponse{
		Status:   "ready",
		Store:    s.gateway.StoreName(),
		Importer: s.importer.Status(),
		Staged:   s.staging.Len(),
		Watchers: s.importer.Progress().Subscribers(),
	}
	status := http.StatusOK
	if err := s.gateway.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
