// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloudops-agent/internal/agent/audit"
	"cloudops-agent/internal/agent/catalog"
	"cloudops-agent/internal/agent/chat"
	"cloudops-agent/internal/agent/dispatcher"
	"cloudops-agent/internal/agent/gate"
	"cloudops-agent/internal/common/config"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/common/observability"
	"cloudops-agent/internal/models"
)

const (
	WelcomeMessage = "Welcome to Cloud Operations Agent"

	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
)

// Check is a named readiness probe, typically a backing store's Ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Chat          *chat.Service
	Gate          *gate.Gate
	Dispatcher    *dispatcher.Dispatcher
	Catalog       *catalog.Catalog
	Audit         *audit.Log
	Observability *observability.Observability
	Checks        []Check
	Logger        logger.Logger
}

type Server struct {
	deps   Deps
	mux    *http.ServeMux
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func New(deps Deps) *Server {
	log := logger.Component(deps.Logger, "http")
	s := &Server{
		deps:   deps,
		mux:    http.NewServeMux(),
		errors: apperrors.NewErrorHandler(log),
		logger: log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)

	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/confirm", s.handleConfirm)

	s.mux.HandleFunc("POST /api/vm/create", s.direct(models.IntentCreateVM, false))
	s.mux.HandleFunc("POST /api/vm/resize", s.direct(models.IntentResizeVM, true))
	s.mux.HandleFunc("DELETE /api/vm/delete", s.direct(models.IntentDeleteVM, true))
	s.mux.HandleFunc("POST /api/network/create", s.direct(models.IntentCreateNetwork, false))
	s.mux.HandleFunc("POST /api/volume/create", s.direct(models.IntentCreateVolume, false))
	s.mux.HandleFunc("DELETE /api/volume/delete", s.direct(models.IntentDeleteVolume, true))
	s.mux.HandleFunc("GET /api/usage", s.handleUsage)

	s.mux.HandleFunc("GET /api/interactions", s.handleInteractions)
	s.mux.HandleFunc("GET /api/interactions/search", s.handleSearch)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.instrument(s.mux))
}

// HTTPServer builds an *http.Server for cfg.
func (s *Server) HTTPServer(cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadTimeout:       config.GetDuration(cfg.ReadTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.GetDuration(cfg.WriteTimeout),
	}
}
