// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package audit records security-relevant events for the authentication
// core. The trail is append-only: nothing in this package updates or
// deletes entries (retention is an external concern).
package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	EventLoginSuccess          EventType = "auth.login_success"
	EventLoginFailure          EventType = "auth.login_failure"
	EventLogout                EventType = "auth.logout"
	EventSignup                EventType = "auth.signup"
	EventPasswordChange        EventType = "auth.password_change"
	EventTokenRefresh          EventType = "auth.token_refresh"
	EventTokenRefreshFailure   EventType = "auth.token_refresh_failure"
	EventRateLimitExceeded     EventType = "auth.rate_limit_exceeded"
	EventCSRFFailure           EventType = "auth.csrf_failure"
	EventTokenReuseDetected    EventType = "auth.token_reuse_detected"
	EventUnauthorizedAccess    EventType = "auth.unauthorized_access"
	EventAllSessionsInvalidate EventType = "auth.all_sessions_invalidated"
	EventStoreDegraded         EventType = "auth.store_degraded"
)

// Level indicates event severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// synchronous reports whether events of this level bypass buffering.
func (l Level) synchronous() bool {
	return l == LevelError || l == LevelCritical
}

// Event is one audit trail entry.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Level     Level           `json:"level"`
	UserID    string          `json:"userId,omitempty"`
	Email     string          `json:"email,omitempty"`
	IPAddress string          `json:"ipAddress"`
	UserAgent string          `json:"userAgent,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Source is the request provenance attached to events.
type Source struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// SourceFromRequest extracts provenance from an HTTP request, honoring
// forwarding headers and the chi request ID when present.
func SourceFromRequest(r *http.Request) Source {
	return Source{
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: chimiddleware.GetReqID(r.Context()),
	}
}

// ClientIP returns the originating client address: the first hop of
// X-Forwarded-For, then X-Real-IP, then the peer address without its
// port. The same value keys rate limiting, so the two must not diverge
// behind multi-hop proxies.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		host = host[:idx]
	}
	return host
}

// Store defines the persistence interface for the audit trail.
type Store interface {
	// Append persists a batch of events.
	Append(ctx context.Context, events []*Event) error
}

// mustJSON converts a value to JSON, returning an empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
