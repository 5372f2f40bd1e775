// Package web provides the HTTP server for the document archive: the archive
// page, the JSON API and the import progress stream.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/archive/internal/config"
	"github.com/JonMunkholm/archive/internal/filearchive"
	"github.com/JonMunkholm/archive/internal/gateway"
	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/metrics"
	"github.com/JonMunkholm/archive/internal/staging"
	mw "github.com/JonMunkholm/archive/internal/web/middleware"
)

//go:embed static
var staticFiles embed.FS

// Deps are the collaborators the server needs.
type Deps struct {
	Config   *config.Config
	Gateway  *gateway.Gateway
	Importer *importer.Orchestrator
	Staging  *staging.Store
	Archiver filearchive.Archiver
}

// Server is the HTTP server for the archive application.
type Server struct {
	cfg      *config.Config
	gateway  *gateway.Gateway
	importer *importer.Orchestrator
	staging  *staging.Store
	archiver filearchive.Archiver

	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(deps Deps) *Server {
	s := &Server{
		cfg:      deps.Config,
		gateway:  deps.Gateway,
		importer: deps.Importer,
		staging:  deps.Staging,
		archiver: deps.Archiver,
		router:   chi.NewRouter(),
	}
	if s.archiver == nil {
		s.archiver = filearchive.Noop{}
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes. The progress stream sits outside
// the timeout and compression group so it can stay open.
func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", metrics.Handler())

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
		r.Get("/", s.handleIndex)
		r.Get("/archive", s.handleArchivePage)
		r.Get("/archive/imports/{sessionID}", s.handleStagingPage)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Get("/progress", s.handleProgressStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			// Records
			r.Get("/records", s.handleListRecords)
			r.Post("/records", s.handleCreateRecord)
			r.Post("/records/delete", s.handleDeleteRecords)
			r.Get("/records/{id}", s.handleGetRecord)
			r.Put("/records/{id}", s.handleUpdateRecord)
			r.Delete("/records/{id}", s.handleDeleteRecord)

			// Export
			r.Get("/export", s.handleExport)
			r.Get("/template", s.handleDownloadTemplate)

			// Staged imports
			r.Get("/imports/{sessionID}", s.handleGetImport)
			r.Patch("/imports/{sessionID}/cells", s.handleEditCell)
			r.Put("/imports/{sessionID}/rows/{row}", s.handleReplaceRow)
			r.Delete("/imports/{sessionID}", s.handleDiscardImport)
			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					uploads := newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute)
					r.Use(uploads.middleware)
				}
				r.Post("/imports", s.handleUploadImport)
				r.Post("/imports/{sessionID}/commit", s.handleCommitImport)
			})

			// Progress
			r.Get("/progress/current", s.handleCurrentProgress)
			r.Post("/progress/reset", s.handleResetProgress)
			r.Post("/progress/cancel", s.handleCancelImport)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr, "store", s.gateway.StoreName())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if csp {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data:; connect-src 'self'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a fixed-window request limit per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every window.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if rl.now().Sub(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
// TrustedRealIP has already rewritten RemoteAddr.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(mw.ClientIP(r)) {
			w.Header().Set("Retry-After", fmt.Sprint(int(rl.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes a JSON error response with a bare message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// writeJSON encodes v as JSON and writes it to w with status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
