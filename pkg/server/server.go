// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server owns the HTTP listener lifecycle: start, graceful
// shutdown on context cancellation, and wait-for-stop, wrapping whatever
// http.Handler the API package builds.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadirpekel/taskflow/pkg/config"
)

// Server owns the http.Server and its lifecycle.
type Server struct {
	cfg    *config.ServerConfig
	http   *http.Server
	doneCh chan struct{}
}

// New builds a Server bound to cfg's address, serving handler.
func New(cfg *config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:         cfg.Address(),
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		doneCh: make(chan struct{}),
	}
}

// Address returns the address the server listens on.
func (s *Server) Address() string {
	return s.cfg.Address()
}

// Start runs the HTTP server until ctx is cancelled, then gracefully shuts
// it down. It blocks until shutdown completes or a listener error occurs.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "address", s.cfg.Address())
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		close(s.doneCh)
		return err
	case <-ctx.Done():
		err := s.Shutdown(context.Background())
		close(s.doneCh)
		return err
	}
}

// Shutdown gracefully stops the HTTP server within a 5-second deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Wait blocks until Start has returned.
func (s *Server) Wait() {
	<-s.doneCh
}
