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
)

func TestMemoryStoreInsertAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

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

	// Mutating the returned copy must not touch the stored session.
	found.IsValid = false
	again, err := store.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !again.IsValid {
		t.Error("stored session mutated through returned copy")
	}
}

func TestMemoryStoreFindMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.FindByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreIncrementVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

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

	// Replaying the old expected version must conflict.
	if _, err := store.IncrementVersion(ctx, s.ID, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	if _, err := store.IncrementVersion(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreIncrementVersionRejectsInvalidated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := New("user-1", "", "", time.Hour)
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Invalidate(ctx, s.ID); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if _, err := store.IncrementVersion(ctx, s.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rotating invalidated session, got %v", err)
	}

	found, err := store.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.RefreshTokenVersion != 1 {
		t.Errorf("version advanced on invalidated session: %d", found.RefreshTokenVersion)
	}
}

func TestMemoryStoreIncrementVersionRejectsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := New("user-1", "", "", time.Millisecond)
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := store.IncrementVersion(ctx, s.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rotating expired session, got %v", err)
	}
}

func TestMemoryStoreConcurrentIncrementExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := New("user-1", "", "", time.Hour)
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	const racers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementVersion(ctx, s.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d/%d", racers-1, wins, conflicts)
	}

	final, err := store.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if final.RefreshTokenVersion != 2 {
		t.Errorf("expected exactly one increment, version is %d", final.RefreshTokenVersion)
	}
}

func TestMemoryStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := New("user-1", "", "", time.Hour)
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Invalidate(ctx, s.ID); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	found, err := store.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.IsValid {
		t.Error("session still valid after Invalidate")
	}

	// Idempotent, including for absent sessions.
	if err := store.Invalidate(ctx, s.ID); err != nil {
		t.Errorf("second Invalidate failed: %v", err)
	}
	if err := store.Invalidate(ctx, "missing"); err != nil {
		t.Errorf("Invalidate of missing session failed: %v", err)
	}
}

func TestMemoryStoreInvalidateAllForUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	keep := New("user-1", "", "", time.Hour)
	s2 := New("user-1", "", "", time.Hour)
	s3 := New("user-1", "", "", time.Hour)
	other := New("user-2", "", "", time.Hour)
	for _, s := range []*Session{keep, s2, s3, other} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	count, err := store.InvalidateAllForUser(ctx, "user-1", keep.ID)
	if err != nil {
		t.Fatalf("InvalidateAllForUser failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 invalidated, got %d", count)
	}

	kept, _ := store.FindByID(ctx, keep.ID)
	if !kept.IsValid {
		t.Error("excepted session was invalidated")
	}
	unrelated, _ := store.FindByID(ctx, other.ID)
	if !unrelated.IsValid {
		t.Error("other user's session was invalidated")
	}
}

func TestMemoryStoreListValidForUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old := New("user-1", "", "", time.Hour)
	old.LastUsedAt = time.Now().Add(-time.Hour)
	recent := New("user-1", "", "", time.Hour)
	invalid := New("user-1", "", "", time.Hour)
	invalid.IsValid = false
	expired := New("user-1", "", "", time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	for _, s := range []*Session{old, recent, invalid, expired} {
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

func TestMemoryStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	live := New("user-1", "", "", time.Hour)
	dead := New("user-1", "", "", time.Hour)
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
	if _, err := store.FindByID(ctx, live.ID); err != nil {
		t.Errorf("live session removed: %v", err)
	}
}
