// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/learnloop/learnloop/internal/logging"
)

// HTTPServer wraps an http.Server as a supervised service with graceful
// shutdown when the tree stops.
type HTTPServer struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPServer creates a supervised wrapper around the given server.
func NewHTTPServer(server *http.Server, shutdownTimeout time.Duration) *HTTPServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServer{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPServer) String() string { return "http-server" }

// Serve listens until the context is canceled, then shuts down gracefully.
func (h *HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", h.server.Addr).
			Msg("HTTP server listening")
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		logging.Err(err).Msg("HTTP server shutdown error, closing")
		_ = h.server.Close()
	} else {
		logging.Info().Msg("HTTP server stopped")
	}
	return ctx.Err()
}
