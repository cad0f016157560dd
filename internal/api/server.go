package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dinestack/dinewatch/internal/config"
)

// Server is the REST surface: alert webhooks in, history and stats out.
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
	logger     *slog.Logger
}

// NewRouter wires the handlers onto a mux.
func NewRouter(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /alerts/{source}", h.ReceiveAlerts)
	mux.HandleFunc("GET /alerts/history", h.AlertHistory)
	mux.HandleFunc("GET /alerts/{id}", h.AlertByID)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("POST /trigger-check", h.TriggerCheck)
	return mux
}

// NewServer binds the routed handlers to the configured address.
func NewServer(cfg config.ServerConfig, h *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := NewRouter(h)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves requests until Shutdown is invoked.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("address", s.cfg.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured graceful timeout.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GracefulTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown incomplete", slog.Any("error", err))
	}
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
