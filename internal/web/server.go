// Package web provides the HTTP API for validating, correcting and ingesting
// CSV files.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
	mw "github.com/JonMunkholm/csvguard/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is the read side of persistence used by the API.
type Store interface {
	Lookup(ctx context.Context, fingerprint string) (*core.Script, error)
	ListScripts(ctx context.Context, limit int) ([]core.Script, error)
	Recent(ctx context.Context, limit int) ([]core.AuditEntry, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the validation API.
type Server struct {
	cfg      *config.Config
	pipeline *core.Pipeline
	registry *core.Registry
	store    Store
	limiter  *core.RunLimiter

	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// NewServer creates a new Server instance. A nil limiter is replaced by one
// sized from cfg.Upload.
func NewServer(cfg *config.Config, pipeline *core.Pipeline, registry *core.Registry, store Store, limiter *core.RunLimiter) *Server {
	if limiter == nil {
		limiter = core.NewRunLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	}
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		registry: registry,
		store:    store,
		limiter:  limiter,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// Catalog and history
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/templates", s.handleListTemplates)
			r.Get("/templates/{name}", s.handleGetTemplate)
			r.Get("/scripts", s.handleListScripts)
			r.Get("/scripts/{fingerprint}", s.handleGetScript)
			r.Get("/ingestions", s.handleListIngestions)
			r.Get("/status", s.handleStatus)
		})

		// Uploads. Runs carry their own deadline (cfg.Upload.Timeout).
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(s.newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
			}

			r.Post("/validate", s.handleValidate)
			r.Post("/fingerprint", s.handleFingerprint)
			r.Post("/runs", s.handleRun)
		})
	})
}

// Start listens on cfg.Server.Addr() until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its rate limiters.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Limiter returns the run limiter, for draining on shutdown.
func (s *Server) Limiter() *core.RunLimiter {
	return s.limiter
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
