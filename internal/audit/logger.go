// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/metrics"
)

// Config holds audit logger configuration.
type Config struct {
	// BufferCapacity is the buffered-entry threshold that triggers a
	// flush. Default: 100.
	BufferCapacity int

	// FlushInterval is the timer-driven flush period. Default: 30s.
	FlushInterval time.Duration

	// StoreTimeout bounds each persistence call. Default: 5s.
	StoreTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: 100,
		FlushInterval:  30 * time.Second,
		StoreTimeout:   5 * time.Second,
	}
}

// Logger buffers audit events and flushes them to the store when the
// buffer reaches capacity or the flush timer fires, whichever first.
// Error and critical events are also written through synchronously to
// minimize loss on crash. Persistence failures never propagate to the
// originating request; they are logged and the events dropped.
type Logger struct {
	store  Store
	config Config

	mu  sync.Mutex
	buf []*Event

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewLogger creates an audit Logger and starts its flush timer.
func NewLogger(store Store, config Config) *Logger {
	if config.BufferCapacity <= 0 {
		config.BufferCapacity = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 30 * time.Second
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 5 * time.Second
	}

	l := &Logger{
		store:  store,
		config: config,
		buf:    make([]*Event, 0, config.BufferCapacity),
		stop:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.flushLoop()
	return l
}

// Record appends an event to the buffer. Error/critical events are written
// through to the store immediately instead of waiting in the buffer.
func (l *Logger) Record(event *Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	metrics.AuditEventsRecorded.WithLabelValues(string(event.Level)).Inc()

	if event.Level.synchronous() {
		l.persist([]*Event{event})
		return
	}

	l.mu.Lock()
	l.buf = append(l.buf, event)
	shouldFlush := len(l.buf) >= l.config.BufferCapacity
	l.mu.Unlock()

	if shouldFlush {
		l.Flush()
	}
}

// Flush writes all buffered events to the store.
func (l *Logger) Flush() {
	l.mu.Lock()
	if len(l.buf) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.buf
	l.buf = make([]*Event, 0, l.config.BufferCapacity)
	l.mu.Unlock()

	l.persist(batch)
}

func (l *Logger) persist(events []*Event) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.config.StoreTimeout)
	defer cancel()

	if err := l.store.Append(ctx, events); err != nil {
		// Best-effort by contract: the originating request never fails
		// because the audit store is down.
		metrics.AuditEventsDropped.Add(float64(len(events)))
		logging.Error().Err(err).Int("dropped", len(events)).Msg("Failed to persist audit events")
	}
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.stop:
			l.Flush()
			return
		}
	}
}

// Close flushes remaining events and stops the flush timer.
func (l *Logger) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

// Convenience constructors for the security events the core emits.

// LoginSuccess records a successful login.
func (l *Logger) LoginSuccess(userID, email string, src Source, sessionID string) {
	l.Record(&Event{
		Type:      EventLoginSuccess,
		Level:     LevelInfo,
		UserID:    userID,
		Email:     email,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "user logged in",
		Metadata:  mustJSON(map[string]string{"sessionId": sessionID}),
	})
}

// LoginFailure records a failed login attempt.
func (l *Logger) LoginFailure(email string, src Source, reason string) {
	l.Record(&Event{
		Type:      EventLoginFailure,
		Level:     LevelWarning,
		Email:     email,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "login failed",
		Metadata:  mustJSON(map[string]string{"reason": reason}),
	})
}

// Logout records a logout.
func (l *Logger) Logout(userID string, src Source, sessionID string) {
	l.Record(&Event{
		Type:      EventLogout,
		Level:     LevelInfo,
		UserID:    userID,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "user logged out",
		Metadata:  mustJSON(map[string]string{"sessionId": sessionID}),
	})
}

// Signup records a new account registration.
func (l *Logger) Signup(userID, email string, src Source) {
	l.Record(&Event{
		Type:      EventSignup,
		Level:     LevelInfo,
		UserID:    userID,
		Email:     email,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "account created",
	})
}

// PasswordChange records a password change.
func (l *Logger) PasswordChange(userID string, src Source, otherSessionsInvalidated int) {
	l.Record(&Event{
		Type:      EventPasswordChange,
		Level:     LevelInfo,
		UserID:    userID,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "password changed",
		Metadata:  mustJSON(map[string]int{"otherSessionsInvalidated": otherSessionsInvalidated}),
	})
}

// TokenRefresh records a successful refresh-token rotation.
func (l *Logger) TokenRefresh(userID string, src Source, sessionID string, version int64) {
	l.Record(&Event{
		Type:      EventTokenRefresh,
		Level:     LevelInfo,
		UserID:    userID,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "refresh token rotated",
		Metadata: mustJSON(map[string]interface{}{
			"sessionId": sessionID,
			"version":   version,
		}),
	})
}

// TokenRefreshFailure records a failed refresh attempt.
func (l *Logger) TokenRefreshFailure(src Source, reason string) {
	l.Record(&Event{
		Type:      EventTokenRefreshFailure,
		Level:     LevelWarning,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "token refresh failed",
		Metadata:  mustJSON(map[string]string{"reason": reason}),
	})
}

// RateLimitExceeded records a blocked identifier.
func (l *Logger) RateLimitExceeded(identifier string, src Source, retryAfter int) {
	l.Record(&Event{
		Type:      EventRateLimitExceeded,
		Level:     LevelWarning,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "rate limit exceeded",
		Metadata: mustJSON(map[string]interface{}{
			"identifier": identifier,
			"retryAfter": retryAfter,
		}),
	})
}

// CSRFFailure records a CSRF validation failure with its specific cause.
func (l *Logger) CSRFFailure(src Source, cause string) {
	l.Record(&Event{
		Type:      EventCSRFFailure,
		Level:     LevelWarning,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "CSRF validation failed",
		Metadata:  mustJSON(map[string]string{"cause": cause}),
	})
}

// TokenReuseDetected records a detected refresh-token replay. Always
// critical: reuse implies a stolen token.
func (l *Logger) TokenReuseDetected(userID string, src Source, sessionID string, presented, current int64) {
	l.Record(&Event{
		Type:      EventTokenReuseDetected,
		Level:     LevelCritical,
		UserID:    userID,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "refresh token reuse detected, all user sessions invalidated",
		Metadata: mustJSON(map[string]interface{}{
			"sessionId":        sessionID,
			"presentedVersion": presented,
			"currentVersion":   current,
		}),
	})
}

// UnauthorizedAccess records a request rejected by a role gate.
func (l *Logger) UnauthorizedAccess(userID string, src Source, path, requiredRole string) {
	l.Record(&Event{
		Type:      EventUnauthorizedAccess,
		Level:     LevelWarning,
		UserID:    userID,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "unauthorized access attempt",
		Metadata: mustJSON(map[string]string{
			"path":         path,
			"requiredRole": requiredRole,
		}),
	})
}

// AllSessionsInvalidated records a mass invalidation.
func (l *Logger) AllSessionsInvalidated(userID string, src Source, count int, reason string) {
	l.Record(&Event{
		Type:      EventAllSessionsInvalidate,
		Level:     LevelWarning,
		UserID:    userID,
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
		RequestID: src.RequestID,
		Message:   "all user sessions invalidated",
		Metadata: mustJSON(map[string]interface{}{
			"count":  count,
			"reason": reason,
		}),
	})
}

// StoreDegraded records a fall back to in-memory session state.
func (l *Logger) StoreDegraded(operation string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	l.Record(&Event{
		Type:      EventStoreDegraded,
		Level:     LevelError,
		IPAddress: "-",
		Message:   "session store degraded, using in-memory fallback",
		Metadata: mustJSON(map[string]string{
			"operation": operation,
			"cause":     msg,
		}),
	})
}
