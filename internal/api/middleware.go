// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/learnloop/learnloop/internal/audit"
	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/metrics"
	"github.com/learnloop/learnloop/internal/session"
	"github.com/learnloop/learnloop/internal/token"
)

// RequireAuth authenticates the request or rejects it with 401. The state
// machine:
//
//  1. no access token anywhere -> 401
//  2. access token verifies -> attach identity, proceed
//  3. access token invalid/expired -> silent refresh: verify the refresh
//     cookie, validate the session version, rotate, set new cookies,
//     attach the fresh identity, proceed
//  4. refresh also missing/invalid -> 401
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := accessTokenFromRequest(r)
		if accessToken == "" {
			respondUnauthorized(w)
			return
		}

		if claims, err := s.authority.VerifyAccess(accessToken); err == nil {
			metrics.TokenVerifications.WithLabelValues("access", "valid").Inc()
			id := &authIdentity{Claims: claims, SessionID: s.sessionIDFromRefreshCookie(r)}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
			return
		}
		metrics.TokenVerifications.WithLabelValues("access", "invalid").Inc()

		id, ok := s.silentRefresh(w, r)
		if !ok {
			respondUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// silentRefresh turns a valid refresh cookie into a fresh token pair. It
// writes the new cookies on success. A lost rotation race reads as an
// ordinary authentication failure, not as reuse.
func (s *Server) silentRefresh(w http.ResponseWriter, r *http.Request) (*authIdentity, bool) {
	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		return nil, false
	}

	claims, err := s.authority.VerifyRefresh(refreshToken)
	if err != nil {
		metrics.TokenVerifications.WithLabelValues("refresh", "invalid").Inc()
		return nil, false
	}
	metrics.TokenVerifications.WithLabelValues("refresh", "valid").Inc()

	src := audit.SourceFromRequest(r)
	if _, err := s.sessions.ValidateRefreshVersion(r.Context(), claims.SessionID, claims.TokenVersion, src); err != nil {
		if errors.Is(err, session.ErrReuseDetected) {
			// Every session of the user is already dead; drop the
			// cookies so the client re-authenticates.
			s.clearAuthCookies(w)
		}
		return nil, false
	}

	rotated, err := s.sessions.Rotate(r.Context(), claims.SessionID, claims.TokenVersion)
	if err != nil {
		if errors.Is(err, session.ErrVersionConflict) {
			metrics.RefreshRotations.WithLabelValues("conflict").Inc()
		}
		return nil, false
	}

	user, err := s.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		return nil, false
	}

	accessToken, refreshTokenNew, err := s.issueTokenPair(user.Identity(), rotated)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to mint tokens during silent refresh")
		return nil, false
	}
	s.setAuthCookies(w, accessToken, refreshTokenNew)
	metrics.RefreshRotations.WithLabelValues("rotated").Inc()
	s.audit.TokenRefresh(user.ID, src, rotated.ID, rotated.RefreshTokenVersion)

	accessClaims, err := s.authority.VerifyAccess(accessToken)
	if err != nil {
		return nil, false
	}
	return &authIdentity{Claims: accessClaims, SessionID: rotated.ID}, true
}

// OptionalAuth attaches the identity when a valid access token is present
// and proceeds anonymously otherwise. No silent refresh, never a 401.
func (s *Server) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accessToken := accessTokenFromRequest(r); accessToken != "" {
			if claims, err := s.authority.VerifyAccess(accessToken); err == nil {
				id := &authIdentity{Claims: claims, SessionID: s.sessionIDFromRefreshCookie(r)}
				r = r.WithContext(withIdentity(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates a route on one role. Runs after RequireAuth in the
// middleware chain, so authentication failures always precede authorization
// failures.
func (s *Server) RequireRole(role token.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityFrom(r.Context())
			if id == nil {
				respondUnauthorized(w)
				return
			}
			if id.Claims.Role != role {
				s.audit.UnauthorizedAccess(id.Claims.UserID, audit.SourceFromRequest(r), r.URL.Path, string(role))
				respondError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStudent gates a route to students.
func (s *Server) RequireStudent(next http.Handler) http.Handler {
	return s.RequireRole(token.RoleStudent)(next)
}

// RequireInstructor gates a route to instructors.
func (s *Server) RequireInstructor(next http.Handler) http.Handler {
	return s.RequireRole(token.RoleInstructor)(next)
}

// RequireAdmin gates a route to admins.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return s.RequireRole(token.RoleAdmin)(next)
}

// sessionIDFromRefreshCookie extracts the session ID bound to the current
// refresh cookie, best effort.
func (s *Server) sessionIDFromRefreshCookie(r *http.Request) string {
	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		return ""
	}
	claims, err := s.authority.VerifyRefresh(refreshToken)
	if err != nil {
		return ""
	}
	return claims.SessionID
}

// securityHeaders sets the baseline response headers on every route.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request duration and status per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}

// throttle applies a process-wide request rate cap. Zero disables it.
func throttle(limit float64) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(limit), int(limit))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
