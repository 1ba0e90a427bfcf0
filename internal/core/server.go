// Package core provides the HTTP chassis for the Momentum engine. It builds
// a chi router usable both behind standard HTTP (local dev) and AWS Lambda
// proxy integration, and enforces cross-cutting concerns -- panic recovery,
// request correlation, logging, and cron-secret auth -- before requests reach
// the trigger handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"momentum/internal/config"
)

// Server bundles the router with the dependencies every middleware needs.
// Trigger handlers are mounted through V1RouteRegistrars so the handler
// package can depend on core without a cycle.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are checked by GET /health. Empty means healthy.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount routes under /v1, behind cron auth.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer validates critical dependencies and prepares the router. Routes
// are mounted separately via MountRoutes so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.ListenAndServe or
// a Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
