// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package audit

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// MemoryStore is an in-memory audit store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append persists a batch of events.
func (s *MemoryStore) Append(ctx context.Context, events []*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		copied := *e
		s.events = append(s.events, &copied)
	}
	return nil
}

// Events returns a snapshot of all recorded events.
func (s *MemoryStore) Events() []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]*Event, len(s.events))
	copy(snapshot, s.events)
	return snapshot
}

// auditKeyPrefix namespaces audit entries in BadgerDB. Keys embed the
// timestamp so entries iterate in time order.
const auditKeyPrefix = "audit:"

// BadgerStore is the durable audit store.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed audit store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Append persists a batch of events in one transaction.
func (s *BadgerStore) Append(ctx context.Context, events []*Event) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal audit event: %w", err)
			}
			key := []byte(auditKeyPrefix + strconv.FormatInt(e.Timestamp.UnixNano(), 10) + ":" + e.ID)
			if err := txn.Set(key, data); err != nil {
				return fmt.Errorf("set audit event: %w", err)
			}
		}
		return nil
	})
}
