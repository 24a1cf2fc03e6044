// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admitbridge/internal/common/auth"
	"admitbridge/internal/common/config"
	"admitbridge/internal/common/logger"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the admissions HTTP server. No TLS here: termination happens at
// the gateway in front of the service.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
	cfg        config.ServerConfig
}

// NewRouter wires the middleware chain and routes.
func NewRouter(h *Handler, resolver auth.Resolver, log logger.Logger) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(Metrics())
	router.Use(RequestLogger(log))

	router.Get("/healthz", h.Health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(resolver, log))
		r.Get("/draft", h.GetDraft)
		r.Put("/draft", h.SaveDraft)
		r.Delete("/draft", h.DeleteDraft)
		r.Post("/applications", h.SubmitApplication)
	})
	return router
}

func NewServer(cfg config.ServerConfig, h *Handler, resolver auth.Resolver, log logger.Logger) *Server {
	router := NewRouter(h, resolver, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     log,
		cfg:        cfg,
	}
}

// Run starts the server and blocks until SIGINT/SIGTERM, then drains
// in-flight requests within the configured shutdown timeout.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server started", map[string]interface{}{
			"addr": s.httpServer.Addr,
		})
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutdown signal received", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownTimeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP server stopped", nil)
	return nil
}
