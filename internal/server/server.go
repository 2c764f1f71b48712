// Package server exposes the operator health endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Status reports process state for the health endpoints.
type Status interface {
	Started() bool
	LastResults() any
}

// StatusFuncs adapts plain functions to Status.
type StatusFuncs struct {
	StartedFn func() bool
	ResultsFn func() any
}

func (f StatusFuncs) Started() bool    { return f.StartedFn() }
func (f StatusFuncs) LastResults() any { return f.ResultsFn() }

// Server serves /healthz, /readyz and /status.
type Server struct {
	srv    *http.Server
	status Status
	logger *zap.Logger
}

// New builds a server listening on addr. Nothing is bound until Run.
func New(addr string, status Status, logger *zap.Logger) *Server {
	s := &Server{status: status, logger: logger.Named("server")}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.ready).Methods(http.MethodGet)
	r.HandleFunc("/status", s.statusJSON).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health server listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (s *Server) ready(w http.ResponseWriter, _ *http.Request) {
	if s.status.Started() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (s *Server) statusJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{
		"started": s.status.Started(),
		"jobs":    s.status.LastResults(),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encode status", zap.Error(err))
	}
}
