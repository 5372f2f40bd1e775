package web

// errors.go provides unified error responses for the web layer.
//
// Technical errors are logged with the request id; clients get the mapped
// apperr.UserMessage as JSON, or a plain message for page requests.

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/archive/internal/apperr"
	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/ingest"
	"github.com/JonMunkholm/archive/internal/logging"
	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/staging"
	"github.com/JonMunkholm/archive/internal/store"
)

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Action  string              `json:"action,omitempty"`
	Code    string              `json:"code"`
	Fields  []schema.FieldError `json:"fields,omitempty"`
	Missing []string            `json:"missing,omitempty"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var (
		fieldErrs schema.ValidationErrors
		maxBytes  *http.MaxBytesError
		upload    *ingest.ValidationError
	)
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &upload):
		switch upload.Kind {
		case ingest.KindTooLarge:
			return http.StatusRequestEntityTooLarge
		case ingest.KindMediaType:
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, staging.ErrNotFound), errors.Is(err, importer.ErrNoRun):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, importer.ErrNoStrategy):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the user-facing message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := s.logError(r, err, status)

	if !wantsJSON(r) {
		http.Error(w, msg.Message+" ("+msg.Code+")", status)
		return
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var fieldErrs schema.ValidationErrors
	if errors.As(err, &fieldErrs) {
		resp.Fields = fieldErrs
	}
	var v *ingest.ValidationError
	if errors.As(err, &v) {
		resp.Missing = v.Missing
	}
	writeJSON(w, status, resp)
}

// logError logs the technical error with the request's logger and returns
// its user-facing message.
func (s *Server) logError(r *http.Request, err error, status int) apperr.UserMessage {
	msg := apperr.MapError(err)
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}

	log := logging.FromContext(r.Context())
	if status >= 500 {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}
	return msg
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
