// Package web serves the matching service over HTTP.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/core"
	mw "github.com/JonMunkholm/reconcile/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// requestDefaults fill suggestion parameters the caller omitted.
type requestDefaults struct {
	DaysWindow int
	AmountTol  decimal.Decimal
}

// Server is the HTTP server for the matching service.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	defaults requestDefaults
	validate *validator.Validate
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service:  service,
		cfg:      cfg,
		validate: newValidator(),
		router:   chi.NewRouter(),
		defaults: requestDefaults{
			DaysWindow: cfg.Matching.DaysWindow,
			AmountTol:  decimal.RequireFromString(cfg.Matching.AmountTol),
		},
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(requestMetadata)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", s.handleMetricsText)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))

		// Matching
		r.Post("/suggest", s.handleSuggest)
		r.Post("/po-suggest", s.handlePOSuggest)
		r.Post("/confirm", s.handleConfirm)

		// Telemetry
		r.Get("/metrics", s.handleMetricsJSON)
		r.Post("/metrics/reset", s.handleMetricsReset)
		r.Get("/logs/config", s.handleLogsConfig)
		r.Patch("/logs/config", s.handleLogsOverride)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
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
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
