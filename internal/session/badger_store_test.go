// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open BadgerDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStoreInsertAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStore(openTestBadger(t))

	s := New("user-1", "agent", "10.0.0.1", time.Hour)
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	found, err := store.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.UserID != "user-1" || found.RefreshTokenVersion != 1 || !found.IsValid {
		t.Errorf("unexpected session: %+v", found)
	}
	if found.TokenFamily != s.TokenFamily {
		t.Errorf("token family not persisted: got %q want %q", found.TokenFamily, s.TokenFamily)
	}
}

func TestBadgerStoreFindMissing(t *testing.T) {
	store := NewBadgerStore(openTestBadger(t))
	if _, err := store.FindByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadgerStoreIncrementVersion(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStore(openTestBadger(t))

	s := New("user-1", "", "", time.Hour)
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	updated, err := store.IncrementVersion(ctx, s.ID, 1)
	if err != nil {
		t.Fatalf("IncrementVersion failed: %v", err)
	}
	if updated.RefreshTokenVersion != 2 {
		t.Errorf("expected version 2, got %d", updated.RefreshTokenVersion)
	}

	if _, err := store.IncrementVersion(ctx, s.ID, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on stale expected version, got %v", err)
	}
	if _, err := store.IncrementVersion(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadgerStoreIncrementVersionRejectsDeadSessions(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStore(openTestBadger(t))

	invalidated := New("user-1", "", "", time.Hour)
	if err := store.Insert(ctx, invalidated); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Invalidate(ctx, invalidated.ID); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := store.IncrementVersion(ctx, invalidated.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rotating invalidated session, got %v", err)
	}

	expired := New("user-1", "", "", time.Millisecond)
	if err := store.Insert(ctx, expired); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.IncrementVersion(ctx, expired.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rotating expired session, got %v", err)
	}
}

func TestBadgerStoreConcurrentIncrementExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStore(openTestBadger(t))

	s := New("user-1", "", "", time.Hour)
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	const racers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementVersion(ctx, s.ID, 1)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrVersionConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
	final, err := store.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if final.RefreshTokenVersion != 2 {
		t.Errorf("expected version 2 after single increment, got %d", final.RefreshTokenVersion)
	}
}

func TestBadgerStoreInvalidateAllForUser(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStore(openTestBadger(t))

	keep := New("user-1", "", "", time.Hour)
	s2 := New("user-1", "", "", time.Hour)
	other := New("user-2", "", "", time.Hour)
	for _, s := range []*Session{keep, s2, other} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	count, err := store.InvalidateAllForUser(ctx, "user-1", keep.ID)
	if err != nil {
		t.Fatalf("InvalidateAllForUser failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 invalidated, got %d", count)
	}

	kept, _ := store.FindByID(ctx, keep.ID)
	if !kept.IsValid {
		t.Error("excepted session was invalidated")
	}
	gone, _ := store.FindByID(ctx, s2.ID)
	if gone.IsValid {
		t.Error("sibling session still valid")
	}
	unrelated, _ := store.FindByID(ctx, other.ID)
	if !unrelated.IsValid {
		t.Error("other user's session was invalidated")
	}
}

func TestBadgerStoreListValidForUser(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStore(openTestBadger(t))

	old := New("user-1", "", "", time.Hour)
	old.LastUsedAt = time.Now().Add(-time.Hour)
	recent := New("user-1", "", "", time.Hour)
	invalid := New("user-1", "", "", time.Hour)
	invalid.IsValid = false
	for _, s := range []*Session{old, recent, invalid} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	list, err := store.ListValidForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListValidForUser failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 usable sessions, got %d", len(list))
	}
	if list[0].ID != recent.ID {
		t.Error("expected most recently used session first")
	}
}

func TestBadgerStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStore(openTestBadger(t))

	live := New("user-1", "", "", time.Hour)
	dead := New("user-2", "", "", time.Hour)
	dead.ExpiresAt = time.Now().Add(-time.Minute)
	for _, s := range []*Session{live, dead} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	count, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 deleted, got %d", count)
	}
	if _, err := store.FindByID(ctx, dead.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expired session still present")
	}

	// Dead session's user index must be gone too.
	list, err := store.ListValidForUser(ctx, "user-2")
	if err != nil {
		t.Fatalf("ListValidForUser failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no sessions for user-2, got %d", len(list))
	}
}
