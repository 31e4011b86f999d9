// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package csrf

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/metrics"
)

// MiddlewareConfig holds configuration for the double-submit middleware.
type MiddlewareConfig struct {
	// CookieName is the CSRF cookie name (default: "csrf_token").
	CookieName string

	// HeaderName is the request header carrying the client copy
	// (default: "X-CSRF-Token").
	HeaderName string

	// FormFieldName is the form field fallback (default: "csrfToken").
	FormFieldName string

	// CookieSecure sets the Secure flag on issued cookies.
	CookieSecure bool

	// ExemptPaths are path prefixes that skip CSRF validation.
	ExemptPaths []string

	// OnReject, when set, is called with the specific failure cause
	// before the generic 403 is written. Used for audit recording.
	OnReject func(r *http.Request, cause string)
}

// DefaultMiddlewareConfig returns sensible defaults.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		CookieName:    "csrf_token",
		HeaderName:    "X-CSRF-Token",
		FormFieldName: "csrfToken",
		CookieSecure:  true,
	}
}

// Middleware enforces the double-submit contract: state-changing requests
// must present the same valid signed token in both the CSRF cookie and a
// header or form field the client set explicitly.
type Middleware struct {
	guard  *Guard
	config MiddlewareConfig
}

// NewMiddleware creates the CSRF middleware over a Guard.
func NewMiddleware(guard *Guard, config MiddlewareConfig) *Middleware {
	if config.CookieName == "" {
		config.CookieName = "csrf_token"
	}
	if config.HeaderName == "" {
		config.HeaderName = "X-CSRF-Token"
	}
	if config.FormFieldName == "" {
		config.FormFieldName = "csrfToken"
	}
	return &Middleware{guard: guard, config: config}
}

// safeMethod reports whether a method never changes state (RFC 7231).
func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Protect validates the double-submit pair on state-changing requests.
// Safe methods bypass the check entirely.
func (m *Middleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) || m.isExemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if err := m.validate(r); err != nil {
			m.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validate distinguishes three failure causes: missing copy, copy mismatch,
// and invalid signature/expiry.
func (m *Middleware) validate(r *http.Request) error {
	cookieToken := m.tokenFromCookie(r)
	requestToken := m.tokenFromRequest(r)
	if cookieToken == "" || requestToken == "" {
		return ErrTokenMissing
	}

	// Exact equality of the two copies, constant-time.
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(requestToken)) != 1 {
		return ErrTokenMismatch
	}

	if !m.guard.Verify(cookieToken) {
		return ErrTokenInvalid
	}
	return nil
}

func (m *Middleware) tokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (m *Middleware) tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(m.config.HeaderName); token != "" {
		return token
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		//nolint:errcheck // best effort form parsing
		r.ParseForm()
		return r.PostFormValue(m.config.FormFieldName)
	}
	return ""
}

func (m *Middleware) isExemptPath(path string) bool {
	for _, exempt := range m.config.ExemptPaths {
		if strings.HasPrefix(path, exempt) {
			return true
		}
	}
	return false
}

// cause maps a validation error to its metrics/log label.
func cause(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenMismatch):
		return "mismatch"
	default:
		return "invalid"
	}
}

// reject logs the specific failure cause and returns a genericized 403 so the
// client cannot tell which check failed.
func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	metrics.CSRFFailures.WithLabelValues(cause(err)).Inc()
	if m.config.OnReject != nil {
		m.config.OnReject(r, cause(err))
	}
	logging.Warn().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Msg("CSRF validation failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	//nolint:errcheck // error response
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "CSRF_FAILED",
		"message": "CSRF validation failed",
	})
}

// SetCookie issues a fresh token and writes the CSRF cookie. The cookie is
// readable by client script (HttpOnly=false) so the page can copy it into
// the request header.
func (m *Middleware) SetCookie(w http.ResponseWriter) (string, error) {
	token, err := m.guard.Issue()
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.guard.TTL() / time.Second),
		Secure:   m.config.CookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// HeaderName returns the configured header name, for clients and tests.
func (m *Middleware) HeaderName() string { return m.config.HeaderName }

// CookieName returns the configured cookie name.
func (m *Middleware) CookieName() string { return m.config.CookieName }
