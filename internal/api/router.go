// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions tunes the outer HTTP surface.
type RouterOptions struct {
	// CORSOrigins enables CORS for the given origins. Empty disables it.
	CORSOrigins []string

	// AuthRequestsPerMinute is the coarse per-IP cap on /api/auth routes.
	// This is plumbing-level protection; the per-identifier attempt
	// limiter inside the login handler is the security control.
	AuthRequestsPerMinute int

	// GlobalRateLimit caps requests per second across the listener.
	GlobalRateLimit float64
}

// Router assembles the full route tree.
func (s *Server) Router(opts RouterOptions) chi.Router {
	if opts.AuthRequestsPerMinute <= 0 {
		opts.AuthRequestsPerMinute = 60
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(securityHeaders)
	r.Use(metricsMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(throttle(opts.GlobalRateLimit))

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.csrf.HeaderName()},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealthLive)
	r.Get("/readyz", s.handleHealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(opts.AuthRequestsPerMinute, time.Minute))

		// Login and refresh authenticate by credential and rotating
		// token respectively; the CSRF guard covers the routes a
		// hijacked browser session could abuse.
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Get("/csrf", s.handleCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Use(s.csrf.Protect)

			r.Get("/sessions", s.handleListSessions)
			r.Delete("/sessions", s.handleInvalidateOtherSessions)
			r.Delete("/sessions/{sessionID}", s.handleInvalidateSession)
			r.Post("/password", s.handleChangePassword)
		})
	})

	return r
}
