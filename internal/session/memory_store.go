// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It backs development setups, tests,
// and the Manager's degraded-mode fallback when the durable store is down.
// A single mutex serializes version increments, so rotations cannot lose
// updates.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Insert stores a new session.
func (s *MemoryStore) Insert(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	s.sessions[sess.ID] = &stored
	return nil
}

// FindByID retrieves a session by ID.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

// IncrementVersion advances the version via compare-and-swap under the
// store lock.
func (s *MemoryStore) IncrementVersion(ctx context.Context, id string, expected int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Invalidation is terminal and expiry is one-way; a dead session must
	// never advance, even with a matching version.
	if !sess.Usable() {
		return nil, ErrNotFound
	}
	if sess.RefreshTokenVersion != expected {
		return nil, ErrVersionConflict
	}

	sess.RefreshTokenVersion++
	sess.LastUsedAt = time.Now()
	copied := *sess
	return &copied, nil
}

// Invalidate marks a session invalid. A missing or already-invalid session
// is a no-op success.
func (s *MemoryStore) Invalidate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.IsValid = false
	}
	return nil
}

// InvalidateAllForUser invalidates every session owned by userID except
// exceptID.
func (s *MemoryStore) InvalidateAllForUser(ctx context.Context, userID, exceptID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.ID == exceptID {
			continue
		}
		if sess.IsValid {
			sess.IsValid = false
			count++
		}
	}
	return count, nil
}

// ListValidForUser returns usable sessions ordered most recently used first.
func (s *MemoryStore) ListValidForUser(ctx context.Context, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Usable() {
			copied := *sess
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastUsedAt.After(result[j].LastUsedAt)
	})
	return result, nil
}

// DeleteExpired removes sessions past their horizon.
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, sess := range s.sessions {
		if sess.Expired() {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}
