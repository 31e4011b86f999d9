// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage.
const (
	sessionKeyPrefix  = "session:"
	userIndexPrefix   = "session_user:"
	incrementAttempts = 5
)

// BadgerStore is the durable Store implementation. BadgerDB transactions
// are serializable, so IncrementVersion's read-check-write is atomic; a
// concurrent writer surfaces as badger.ErrConflict and the CAS retries
// against the new state (where the expected-version check then fails).
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed session store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func userIndexKey(userID, id string) []byte {
	return []byte(userIndexPrefix + userID + ":" + id)
}

// Insert stores a new session and its user-index entry.
func (s *BadgerStore) Insert(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(sessionKey(sess.ID), data); err != nil {
			return fmt.Errorf("set session: %w", err)
		}
		if err := txn.Set(userIndexKey(sess.UserID, sess.ID), []byte(sess.ID)); err != nil {
			return fmt.Errorf("set user index: %w", err)
		}
		return nil
	})
}

// FindByID retrieves a session by ID.
func (s *BadgerStore) FindByID(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.View(func(txn *badger.Txn) error {
		return readSession(txn, id, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func readSession(txn *badger.Txn, id string, dst *Session) error {
	item, err := txn.Get(sessionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func writeSession(txn *badger.Txn, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return txn.Set(sessionKey(sess.ID), data)
}

// IncrementVersion advances the version by one when the stored version
// matches expected. Transaction conflicts retry; a stale expected version
// returns ErrVersionConflict.
func (s *BadgerStore) IncrementVersion(ctx context.Context, id string, expected int64) (*Session, error) {
	var updated Session

	for attempt := 0; attempt < incrementAttempts; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			var sess Session
			if err := readSession(txn, id, &sess); err != nil {
				return err
			}
			// Invalidation is terminal and expiry is one-way; a dead
			// session must never advance, even with a matching version.
			if !sess.Usable() {
				return ErrNotFound
			}
			if sess.RefreshTokenVersion != expected {
				return ErrVersionConflict
			}

			sess.RefreshTokenVersion++
			sess.LastUsedAt = time.Now()
			if err := writeSession(txn, &sess); err != nil {
				return err
			}
			updated = sess
			return nil
		})

		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	// Repeated conflicts mean another writer kept winning; the expected
	// version cannot still hold.
	return nil, ErrVersionConflict
}

// Invalidate marks a session invalid. Missing sessions are a no-op success.
func (s *BadgerStore) Invalidate(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var sess Session
		if err := readSession(txn, id, &sess); err != nil {
			return err
		}
		if !sess.IsValid {
			return nil
		}
		sess.IsValid = false
		return writeSession(txn, &sess)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// InvalidateAllForUser invalidates every session owned by userID except
// exceptID.
func (s *BadgerStore) InvalidateAllForUser(ctx context.Context, userID, exceptID string) (int, error) {
	ids, err := s.sessionIDsForUser(userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		invalidated := false
		err := s.db.Update(func(txn *badger.Txn) error {
			var sess Session
			if err := readSession(txn, id, &sess); err != nil {
				return err
			}
			if !sess.IsValid {
				return nil
			}
			sess.IsValid = false
			invalidated = true
			return writeSession(txn, &sess)
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return count, err
		}
		if invalidated {
			count++
		}
	}
	return count, nil
}

func (s *BadgerStore) sessionIDsForUser(userID string) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(userIndexPrefix + userID + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan user index: %w", err)
	}
	return ids, nil
}

// ListValidForUser returns usable sessions ordered most recently used first.
func (s *BadgerStore) ListValidForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.sessionIDsForUser(userID)
	if err != nil {
		return nil, err
	}

	var result []*Session
	for _, id := range ids {
		sess, err := s.FindByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Usable() {
			result = append(result, sess)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastUsedAt.After(result[j].LastUsedAt)
	})
	return result, nil
}

// DeleteExpired removes sessions past their horizon along with their
// user-index entries.
func (s *BadgerStore) DeleteExpired(ctx context.Context) (int, error) {
	type expired struct {
		id     string
		userID string
	}

	var victims []expired
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(sessionKeyPrefix)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sess Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			})
			if err != nil {
				return err
			}
			if sess.Expired() {
				victims = append(victims, expired{id: sess.ID, userID: sess.UserID})
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	count := 0
	for _, v := range victims {
		err := s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete(sessionKey(v.id)); err != nil {
				return err
			}
			return txn.Delete(userIndexKey(v.userID, v.id))
		})
		if err != nil {
			return count, fmt.Errorf("delete expired session: %w", err)
		}
		count++
	}
	return count, nil
}
