// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package session

import (
	"context"
	"errors"
	"sort"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/learnloop/learnloop/internal/audit"
	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/metrics"
)

// ErrReuseDetected is returned by ValidateRefreshVersion when a stale
// token version is presented on a live session. By the time the caller
// sees this error every session of the affected user has already been
// invalidated.
var ErrReuseDetected = errors.New("refresh token reuse detected")

// Manager coordinates session state across a durable store and an
// in-memory fallback. The durable store sits behind a circuit breaker;
// when it is down, session creation degrades to the fallback so login
// keeps working. Reuse detection and mass invalidation always touch
// both stores.
type Manager struct {
	durable  Store
	fallback *MemoryStore
	audit    *audit.Logger
	cb       *gobreaker.CircuitBreaker[any]
	ttl      time.Duration
}

// NewManager creates a Manager over the given durable store. A nil
// durable store yields a memory-only manager (tests, single-node dev).
func NewManager(durable Store, auditLog *audit.Logger, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cbName := "session-store"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= 5
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening session store circuit")
			}
			return trip
		},

		// Business outcomes are not store failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] Session store state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Manager{
		durable:  durable,
		fallback: NewMemoryStore(),
		audit:    auditLog,
		cb:       cb,
		ttl:      ttl,
	}
}

// TTL returns the session lifetime the manager creates sessions with.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// StoreHealthy reports whether the durable store circuit is not open.
// Memory-only managers are always healthy.
func (m *Manager) StoreHealthy() bool {
	return m.durable == nil || m.cb.State() != gobreaker.StateOpen
}

// execute runs a durable-store operation through the circuit breaker.
func (m *Manager) execute(fn func() (any, error)) (any, error) {
	return m.cb.Execute(fn)
}

// degraded records one fallback-served operation.
func (m *Manager) degraded(operation string, cause error) {
	metrics.SessionStoreDegraded.WithLabelValues(operation).Inc()
	logging.Warn().Err(cause).Str("operation", operation).Msg("Session store degraded, using in-memory fallback")
	if m.audit != nil {
		m.audit.StoreDegraded(operation, cause)
	}
}

// Create starts a new session for userID. It never fails on durable
// store outage: when the store is unreachable the session lives in the
// in-memory fallback and the second return value is true.
func (m *Manager) Create(ctx context.Context, userID, userAgent, ipAddress string) (*Session, bool, error) {
	s := New(userID, userAgent, ipAddress, m.ttl)

	if m.durable != nil {
		_, err := m.execute(func() (any, error) {
			return nil, m.durable.Insert(ctx, s)
		})
		if err == nil {
			metrics.SessionsCreated.Inc()
			return s, false, nil
		}
		m.degraded("insert", err)
	}

	if err := m.fallback.Insert(ctx, s); err != nil {
		return nil, false, err
	}
	metrics.SessionsCreated.Inc()
	return s, m.durable != nil, nil
}

// Get retrieves a session from either store. Returns ErrNotFound when
// neither store has it.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if m.durable != nil {
		result, err := m.execute(func() (any, error) {
			return m.durable.FindByID(ctx, id)
		})
		if err == nil {
			return result.(*Session), nil
		}
		if !errors.Is(err, ErrNotFound) {
			m.degraded("find", err)
		}
		// Sessions created during a degraded window live in the
		// fallback only.
	}
	return m.fallback.FindByID(ctx, id)
}

// Rotate atomically advances the session version from expected to
// expected+1. Exactly one of two concurrent rotations with the same
// expected version succeeds; the other gets ErrVersionConflict.
func (m *Manager) Rotate(ctx context.Context, id string, expected int64) (*Session, error) {
	if m.durable != nil {
		result, err := m.execute(func() (any, error) {
			return m.durable.IncrementVersion(ctx, id, expected)
		})
		if err == nil {
			return result.(*Session), nil
		}
		if errors.Is(err, ErrVersionConflict) {
			return nil, ErrVersionConflict
		}
		if !errors.Is(err, ErrNotFound) {
			m.degraded("rotate", err)
		}
	}
	return m.fallback.IncrementVersion(ctx, id, expected)
}

// ValidateRefreshVersion checks a presented refresh token version
// against the session. A stale version on a usable session means the
// token lineage forked: the token was stolen and one copy already
// rotated. All of the user's sessions are invalidated synchronously
// before this returns ErrReuseDetected.
func (m *Manager) ValidateRefreshVersion(ctx context.Context, id string, presented int64, src audit.Source) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsValid {
		return nil, ErrNotFound
	}
	if s.Expired() {
		// Expired sessions are terminally invalidated on first touch.
		if err := m.Invalidate(ctx, id); err != nil {
			logging.Warn().Err(err).Str("session_id", id).Msg("Failed to invalidate expired session")
		}
		return nil, ErrNotFound
	}

	if s.RefreshTokenVersion != presented {
		metrics.TokenReuseDetections.Inc()
		metrics.RefreshRotations.WithLabelValues("reuse_detected").Inc()

		count, invErr := m.InvalidateAllForUser(ctx, s.UserID, "")
		if invErr != nil {
			logging.Error().Err(invErr).Str("user_id", s.UserID).Msg("Failed to invalidate sessions after reuse detection")
		}
		logging.Error().
			Str("user_id", s.UserID).
			Str("session_id", s.ID).
			Int64("presented_version", presented).
			Int64("current_version", s.RefreshTokenVersion).
			Int("sessions_invalidated", count).
			Msg("Refresh token reuse detected")
		if m.audit != nil {
			m.audit.TokenReuseDetected(s.UserID, src, s.ID, presented, s.RefreshTokenVersion)
		}
		return nil, ErrReuseDetected
	}

	return s, nil
}

// Invalidate terminates one session. Idempotent: missing sessions and
// durable store outages do not fail the call.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	if m.durable != nil {
		_, err := m.execute(func() (any, error) {
			return nil, m.durable.Invalidate(ctx, id)
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			m.degraded("invalidate", err)
		}
	}
	return m.fallback.Invalidate(ctx, id)
}

// InvalidateAllForUser terminates every session of userID across both
// stores, sparing exceptID when non-empty. Returns the total count.
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID, exceptID string) (int, error) {
	total := 0
	var firstErr error

	if m.durable != nil {
		result, err := m.execute(func() (any, error) {
			return m.durable.InvalidateAllForUser(ctx, userID, exceptID)
		})
		if err != nil {
			m.degraded("invalidate_all", err)
			firstErr = err
		} else {
			total += result.(int)
		}
	}

	n, err := m.fallback.InvalidateAllForUser(ctx, userID, exceptID)
	if err == nil {
		total += n
	} else if firstErr == nil {
		firstErr = err
	}

	return total, firstErr
}

// ListForUser returns the user's valid sessions from both stores,
// most recently used first. The durable copy wins on ID collisions.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	var sessions []*Session
	seen := make(map[string]bool)

	if m.durable != nil {
		result, err := m.execute(func() (any, error) {
			return m.durable.ListValidForUser(ctx, userID)
		})
		if err == nil {
			for _, s := range result.([]*Session) {
				sessions = append(sessions, s)
				seen[s.ID] = true
			}
		} else {
			m.degraded("list", err)
		}
	}

	fromFallback, err := m.fallback.ListValidForUser(ctx, userID)
	if err != nil {
		return sessions, err
	}
	for _, s := range fromFallback {
		if !seen[s.ID] {
			sessions = append(sessions, s)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastUsedAt.After(sessions[j].LastUsedAt)
	})
	return sessions, nil
}

// CleanupExpired removes expired sessions from both stores.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	total := 0

	if m.durable != nil {
		result, err := m.execute(func() (any, error) {
			return m.durable.DeleteExpired(ctx)
		})
		if err != nil {
			m.degraded("cleanup", err)
		} else {
			total += result.(int)
		}
	}

	n, err := m.fallback.DeleteExpired(ctx)
	if err != nil {
		return total, err
	}
	total += n

	if total > 0 {
		metrics.SessionsSwept.Add(float64(total))
	}
	return total, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
