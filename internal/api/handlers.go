// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package api composes the authentication core into an HTTP surface:
// login, refresh, logout, CSRF issuance, session management, and the
// auth middleware other services mount in front of their routes.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/learnloop/learnloop/internal/audit"
	"github.com/learnloop/learnloop/internal/csrf"
	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/metrics"
	"github.com/learnloop/learnloop/internal/password"
	"github.com/learnloop/learnloop/internal/ratelimit"
	"github.com/learnloop/learnloop/internal/session"
	"github.com/learnloop/learnloop/internal/token"
	"github.com/learnloop/learnloop/internal/users"
)

var validate = validator.New()

// dummyHash absorbs a bcrypt comparison when the account does not exist,
// keeping the unknown-email and wrong-password paths the same shape.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Server holds the composed authentication core.
type Server struct {
	users         users.Directory
	hasher        *password.Hasher
	policy        password.StrengthPolicy
	authority     *token.Authority
	sessions      *session.Manager
	csrf          *csrf.Middleware
	audit         *audit.Logger
	loginLimiter  *ratelimit.Limiter
	secureCookies bool
}

// Config wires the Server's collaborators.
type Config struct {
	Users         users.Directory
	Hasher        *password.Hasher
	Policy        password.StrengthPolicy
	Authority     *token.Authority
	Sessions      *session.Manager
	CSRF          *csrf.Middleware
	Audit         *audit.Logger
	LoginLimiter  *ratelimit.Limiter
	SecureCookies bool
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	if cfg.LoginLimiter == nil {
		cfg.LoginLimiter = ratelimit.NewLimiter(ratelimit.LoginConfig())
	}
	return &Server{
		users:         cfg.Users,
		hasher:        cfg.Hasher,
		policy:        cfg.Policy,
		authority:     cfg.Authority,
		sessions:      cfg.Sessions,
		csrf:          cfg.CSRF,
		audit:         cfg.Audit,
		loginLimiter:  cfg.LoginLimiter,
		secureCookies: cfg.SecureCookies,
	}
}

func (s *Server) issueTokenPair(id token.Identity, sess *session.Session) (accessToken, refreshToken string, err error) {
	accessToken, err = s.authority.IssueAccessToken(id)
	if err != nil {
		return "", "", fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err = s.authority.IssueRefreshToken(id.UserID, id.Role, sess.ID, sess.RefreshTokenVersion)
	if err != nil {
		return "", "", fmt.Errorf("issue refresh token: %w", err)
	}
	metrics.TokensIssued.WithLabelValues("access").Inc()
	metrics.TokensIssued.WithLabelValues("refresh").Inc()
	return accessToken, refreshToken, nil
}

// decodeAndValidate decodes a JSON body and runs struct validation,
// returning field-level violations.
func decodeAndValidate(r *http.Request, dst interface{}) map[string]string {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return map[string]string{"body": "malformed JSON"}
	}
	if err := validate.Struct(dst); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fmt.Sprintf("failed %s validation", fe.Tag())
			}
		} else {
			fields["body"] = "invalid request"
		}
		return fields
	}
	return nil
}

// setRateLimitHeaders exposes limiter state on the response.
func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	if res.Limited {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  token.Role `json:"role"`
}

type loginResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int          `json:"expiresIn"`
}

// handleLogin authenticates credentials and establishes a session.
//
// POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if fields := decodeAndValidate(r, &req); fields != nil {
		respondValidationError(w, fields)
		return
	}

	src := audit.SourceFromRequest(r)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	identifier := "login:" + clientIP(r) + ":" + email

	res := s.loginLimiter.Check(identifier)
	setRateLimitHeaders(w, res)
	if res.Limited {
		metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		metrics.RateLimitBlocks.WithLabelValues("login").Inc()
		s.audit.RateLimitExceeded(identifier, src, res.RetryAfter)
		respondJSON(w, http.StatusTooManyRequests, errorBody{
			Error:      "RATE_LIMITED",
			Message:    "too many login attempts",
			RetryAfter: res.RetryAfter,
		})
		return
	}

	user, err := s.users.FindByEmail(r.Context(), email)
	if err != nil {
		// Burn a hash comparison so missing accounts cost the same as
		// wrong passwords.
		s.hasher.Verify(req.Password, dummyHash)
		s.loginFailed(w, email, src, "unknown email")
		return
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.loginFailed(w, email, src, "wrong password")
		return
	}

	sess, degraded, err := s.sessions.Create(r.Context(), user.ID, r.UserAgent(), src.IPAddress)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create session")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}
	if degraded {
		logging.Warn().Str("user_id", user.ID).Msg("Login proceeding with in-memory session")
	}

	accessToken, refreshToken, err := s.issueTokenPair(user.Identity(), sess)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to issue tokens")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}

	// Successful auth must not count toward lockout history.
	s.loginLimiter.Reset(identifier)

	s.setAuthCookies(w, accessToken, refreshToken)
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.audit.LoginSuccess(user.ID, user.Email, src, sess.ID)

	respondJSON(w, http.StatusOK, loginResponse{
		User:        userResponse{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role},
		AccessToken: accessToken,
		ExpiresIn:   int(s.authority.AccessTTL() / time.Second),
	})
}

// loginFailed records the distinct cause and returns the generic 401.
func (s *Server) loginFailed(w http.ResponseWriter, email string, src audit.Source, reason string) {
	metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
	s.audit.LoginFailure(email, src, reason)
	respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// handleRefresh rotates the refresh token and mints a new pair.
//
// POST /api/auth/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	src := audit.SourceFromRequest(r)

	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		s.refreshFailed(w, src, "missing refresh token")
		return
	}

	claims, err := s.authority.VerifyRefresh(refreshToken)
	if err != nil {
		metrics.TokenVerifications.WithLabelValues("refresh", "invalid").Inc()
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		s.refreshFailed(w, src, "invalid refresh token")
		return
	}
	metrics.TokenVerifications.WithLabelValues("refresh", "valid").Inc()

	if _, err := s.sessions.ValidateRefreshVersion(r.Context(), claims.SessionID, claims.TokenVersion, src); err != nil {
		if errors.Is(err, session.ErrReuseDetected) {
			// Reuse means theft; every session of the user is dead and
			// the cookies go with them.
			s.clearAuthCookies(w)
			s.refreshFailed(w, src, "token reuse")
			return
		}
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		s.refreshFailed(w, src, "invalid session")
		return
	}

	rotated, err := s.sessions.Rotate(r.Context(), claims.SessionID, claims.TokenVersion)
	if err != nil {
		// The normal loser of a concurrent refresh race lands here.
		if errors.Is(err, session.ErrVersionConflict) {
			metrics.RefreshRotations.WithLabelValues("conflict").Inc()
			s.refreshFailed(w, src, "rotation conflict")
			return
		}
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		s.refreshFailed(w, src, "rotation failed")
		return
	}

	user, err := s.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		s.refreshFailed(w, src, "unknown user")
		return
	}

	accessToken, newRefreshToken, err := s.issueTokenPair(user.Identity(), rotated)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to issue tokens on refresh")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "refresh failed")
		return
	}

	s.setAuthCookies(w, accessToken, newRefreshToken)
	metrics.RefreshRotations.WithLabelValues("rotated").Inc()
	s.audit.TokenRefresh(user.ID, src, rotated.ID, rotated.RefreshTokenVersion)

	respondJSON(w, http.StatusOK, refreshResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.authority.AccessTTL() / time.Second),
	})
}

func (s *Server) refreshFailed(w http.ResponseWriter, src audit.Source, reason string) {
	s.audit.TokenRefreshFailure(src, reason)
	respondUnauthorized(w)
}

// handleLogout terminates the current session and clears cookies. Always
// succeeds, even without a valid session.
//
// POST /api/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	src := audit.SourceFromRequest(r)

	if refreshToken := refreshTokenFromRequest(r); refreshToken != "" {
		if claims, err := s.authority.VerifyRefresh(refreshToken); err == nil {
			if err := s.sessions.Invalidate(r.Context(), claims.SessionID); err != nil {
				logging.Warn().Err(err).Msg("Failed to invalidate session on logout")
			} else {
				metrics.SessionsInvalidated.WithLabelValues("logout").Inc()
			}
			s.audit.Logout(claims.UserID, src, claims.SessionID)
		}
	}

	s.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleCSRFToken issues a fresh CSRF token and sets the readable cookie.
//
// GET /api/auth/csrf
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.csrf.SetCookie(w)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to issue CSRF token")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "could not issue token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
}

type sessionResponse struct {
	ID         string    `json:"id"`
	UserAgent  string    `json:"userAgent,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

// handleListSessions lists the caller's active sessions.
//
// GET /api/auth/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	sessions, err := s.sessions.ListForUser(r.Context(), id.Claims.UserID)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list sessions")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "could not list sessions")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:         sess.ID,
			UserAgent:  sess.UserAgent,
			IPAddress:  sess.IPAddress,
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
			ExpiresAt:  sess.ExpiresAt,
			Current:    sess.ID == id.SessionID,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// handleInvalidateSession terminates one of the caller's sessions.
//
// DELETE /api/auth/sessions/{sessionID}
func (s *Server) handleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil || sess.UserID != id.Claims.UserID {
		// Not found and not-yours are indistinguishable on purpose.
		respondError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}

	if err := s.sessions.Invalidate(r.Context(), sessionID); err != nil {
		logging.Error().Err(err).Msg("Failed to invalidate session")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "could not invalidate session")
		return
	}
	metrics.SessionsInvalidated.WithLabelValues("user_request").Inc()
	respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// handleInvalidateOtherSessions terminates every session of the caller
// except the current one.
//
// DELETE /api/auth/sessions
func (s *Server) handleInvalidateOtherSessions(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	src := audit.SourceFromRequest(r)

	count, err := s.sessions.InvalidateAllForUser(r.Context(), id.Claims.UserID, id.SessionID)
	if err != nil {
		logging.Warn().Err(err).Msg("Partial session invalidation")
	}
	metrics.SessionsInvalidated.WithLabelValues("user_request").Add(float64(count))
	s.audit.AllSessionsInvalidated(id.Claims.UserID, src, count, "user request")

	respondJSON(w, http.StatusOK, map[string]int{"invalidated": count})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// handleChangePassword verifies the current password, enforces the strength
// policy, stores the new hash, and invalidates all other sessions.
//
// POST /api/auth/password
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	src := audit.SourceFromRequest(r)

	var req changePasswordRequest
	if fields := decodeAndValidate(r, &req); fields != nil {
		respondValidationError(w, fields)
		return
	}

	user, err := s.users.FindByID(r.Context(), id.Claims.UserID)
	if err != nil {
		respondUnauthorized(w)
		return
	}
	if !s.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "current password is incorrect")
		return
	}

	if result := s.policy.CheckStrength(req.NewPassword); !result.Valid {
		fields := make(map[string]string, len(result.Errors))
		for i, v := range result.Errors {
			fields["newPassword."+strconv.Itoa(i)] = v
		}
		respondValidationError(w, fields)
		return
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to hash password")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "could not change password")
		return
	}
	if err := s.users.SetPasswordHash(r.Context(), user.ID, hash); err != nil {
		logging.Error().Err(err).Msg("Failed to store password hash")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "could not change password")
		return
	}

	// A changed password orphans every other device.
	count, err := s.sessions.InvalidateAllForUser(r.Context(), user.ID, id.SessionID)
	if err != nil {
		logging.Warn().Err(err).Msg("Partial session invalidation after password change")
	}
	metrics.SessionsInvalidated.WithLabelValues("password_change").Add(float64(count))
	s.audit.PasswordChange(user.ID, src, count)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":                   "password changed",
		"otherSessionsInvalidated": count,
	})
}

// handleHealthLive reports process liveness.
//
// GET /healthz
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthReady reports readiness. Degraded (open breaker) is still
// ready: logins keep working on the fallback, but the state is exposed.
//
// GET /readyz
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	store := "ok"
	if !s.sessions.StoreHealthy() {
		store = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "sessionStore": store})
}

// clientIP returns the requester address. Shared with audit provenance so
// rate-limit keys and audit entries agree on the client IP.
func clientIP(r *http.Request) string {
	return audit.ClientIP(r)
}
