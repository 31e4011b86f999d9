// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package session is the authoritative record of refresh-token lineage.
// Each login creates one Session; rotating the refresh token advances the
// session's version counter, and presenting a stale version on a live
// session is treated as token theft.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Session errors.
var (
	// ErrNotFound is returned when a session does not exist in the store.
	ErrNotFound = errors.New("session not found")

	// ErrVersionConflict is returned by IncrementVersion when the stored
	// version no longer matches the expected base version. This is the
	// normal outcome for the loser of a concurrent rotation race.
	ErrVersionConflict = errors.New("session version conflict")
)

// DefaultTTL is the fixed session horizon from creation.
const DefaultTTL = 7 * 24 * time.Hour

// Session anchors one refresh-token lineage for one login.
type Session struct {
	// ID is the opaque 256-bit session identifier.
	ID string `json:"id"`

	// UserID is the owning identity. Many sessions per user (multi-device).
	UserID string `json:"userId"`

	// TokenFamily groups one rotation lineage.
	TokenFamily string `json:"tokenFamily"`

	// RefreshTokenVersion starts at 1 and increments exactly once per
	// successful rotation.
	RefreshTokenVersion int64 `json:"refreshTokenVersion"`

	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`

	// IsValid is terminal: once false it never becomes true again.
	IsValid bool `json:"isValid"`

	// Provenance metadata for user-visible session listings and audit.
	// Not security-enforced.
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Expired reports whether the session is past its horizon.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Usable reports whether the session can still anchor a refresh.
func (s *Session) Usable() bool {
	return s.IsValid && !s.Expired()
}

// New creates a Session for userID with a fresh ID and token family,
// version 1, and the given lifetime.
func New(userID, userAgent, ipAddress string, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return &Session{
		ID:                  newID(),
		UserID:              userID,
		TokenFamily:         newID(),
		RefreshTokenVersion: 1,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
		LastUsedAt:          now,
		IsValid:             true,
		UserAgent:           userAgent,
		IPAddress:           ipAddress,
	}
}

// newID generates a 256-bit random identifier, hex encoded.
func newID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// a time-derived ID keeps login working.
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}

// Store defines the persistence interface for sessions. Implementations
// must make IncrementVersion atomic: of two concurrent calls with the same
// expected version, exactly one succeeds and the other observes
// ErrVersionConflict.
type Store interface {
	// Insert stores a new session.
	Insert(ctx context.Context, s *Session) error

	// FindByID retrieves a session. Returns ErrNotFound if absent.
	FindByID(ctx context.Context, id string) (*Session, error)

	// IncrementVersion advances the session version by one if the stored
	// version equals expected, updating LastUsedAt. Returns the updated
	// session, ErrVersionConflict on a stale expected version, or
	// ErrNotFound when the session is absent, invalidated, or expired.
	IncrementVersion(ctx context.Context, id string, expected int64) (*Session, error)

	// Invalidate marks a session terminally invalid. Idempotent; absent
	// sessions are a no-op success.
	Invalidate(ctx context.Context, id string) error

	// InvalidateAllForUser marks every session owned by userID invalid,
	// sparing exceptID when non-empty. Returns the count invalidated.
	InvalidateAllForUser(ctx context.Context, userID, exceptID string) (int, error)

	// ListValidForUser returns the user's valid, unexpired sessions,
	// most recently used first.
	ListValidForUser(ctx context.Context, userID string) ([]*Session, error)

	// DeleteExpired removes sessions past their horizon. Idempotent and
	// safe to run concurrently on any schedule.
	DeleteExpired(ctx context.Context) (int, error)
}
