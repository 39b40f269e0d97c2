package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greatowl/receptionist/internal/chat"
	"github.com/greatowl/receptionist/internal/config"
	"github.com/greatowl/receptionist/internal/session"
)

// Server exposes the chat service over HTTP.
type Server struct {
	cfg          config.Config
	store        *session.Store
	orchestrator *chat.Orchestrator
	// upstreamReady reports whether the completion credential is configured;
	// surfaced by the health endpoint.
	upstreamReady bool
	logger        *slog.Logger
}

// NewServer wires the HTTP surface.
func NewServer(cfg config.Config, store *session.Store, orchestrator *chat.Orchestrator, upstreamReady bool, logger *slog.Logger) *Server {
	return &Server{
		cfg:           cfg,
		store:         store,
		orchestrator:  orchestrator,
		upstreamReady: upstreamReady,
		logger:        logger,
	}
}

// Routes builds the router with the middleware stack and all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(cors(s.cfg.AllowedOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/reset", s.handleReset)
	r.Get("/ws/chat", s.handleChatSocket)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
