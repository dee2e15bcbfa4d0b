package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mnemosyne/internal/api/health"
	"mnemosyne/internal/metrics"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Addr        string
	ServiceName string
	Version     string
}

// Handlers groups the route handlers the server mounts
type Handlers struct {
	Health   *health.Handler
	Query    *QueryHandler
	Stream   *StreamHandler
	Contexts *ContextHandler
	Models   *ModelsHandler
	Usage    *UsageHandler // nil when the analytics store is disabled
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, h Handlers, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	// Health check endpoints (Kubernetes probes)
	mux.HandleFunc("/health", h.Health.HandleHealth)
	mux.HandleFunc("/ready", h.Health.HandleReadiness)
	mux.HandleFunc("/live", h.Health.HandleLiveness)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	// Query endpoints
	mux.HandleFunc("POST /api/query", h.Query.HandleQuery)
	mux.HandleFunc("GET /api/query/stream", h.Stream.HandleSocket)

	// Model catalog
	mux.HandleFunc("GET /api/models", h.Models.HandleList)

	// Usage aggregates (only when ClickHouse analytics are enabled)
	if h.Usage != nil {
		mux.HandleFunc("GET /api/usage", h.Usage.HandleTotals)
	}

	// Context and content management
	mux.HandleFunc("POST /api/contexts", h.Contexts.HandleCreate)
	mux.HandleFunc("GET /api/contexts", h.Contexts.HandleList)
	mux.HandleFunc("GET /api/contexts/{id}", h.Contexts.HandleGet)
	mux.HandleFunc("PUT /api/contexts/{id}", h.Contexts.HandleUpdate)
	mux.HandleFunc("DELETE /api/contexts/{id}", h.Contexts.HandleDelete)
	mux.HandleFunc("POST /api/contexts/{id}/items", h.Contexts.HandleAddItem)
	mux.HandleFunc("GET /api/contexts/{id}/items", h.Contexts.HandleListItems)
	mux.HandleFunc("GET /api/contexts/{id}/items/{itemID}", h.Contexts.HandleGetItem)
	mux.HandleFunc("DELETE /api/contexts/{id}/items/{itemID}", h.Contexts.HandleDeleteItem)

	// Root endpoint (service info)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"service":"%s","version":"%s","status":"running"}`,
			cfg.ServiceName, cfg.Version)
	})

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	log.Infof("HTTP server configured on %s", addr)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No write timeout: SSE and websocket responses outlive any fixed
		// deadline; streaming handlers set their own
		IdleTimeout: 60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("✓ HTTP server stopped")
	return nil
}
