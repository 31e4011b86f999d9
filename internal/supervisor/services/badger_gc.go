// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package services

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/learnloop/learnloop/internal/logging"
)

// BadgerGC periodically runs Badger value-log garbage collection.
// Badger never reclaims value-log space on its own; without this the
// session and audit stores grow unbounded.
type BadgerGC struct {
	db       *badger.DB
	interval time.Duration
}

// NewBadgerGC creates a GC service for the given database.
func NewBadgerGC(db *badger.DB, interval time.Duration) *BadgerGC {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &BadgerGC{db: db, interval: interval}
}

func (g *BadgerGC) String() string { return "badger-gc" }

// Serve runs GC cycles until the context is canceled.
func (g *BadgerGC) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", g.interval).
		Msg("Badger GC started")

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Badger GC stopped")
			return ctx.Err()
		case <-ticker.C:
			g.collect()
		}
	}
}

func (g *BadgerGC) collect() {
	start := time.Now()
	rewrites := 0
	for {
		err := g.db.RunValueLogGC(0.5)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				logging.Err(err).Msg("Badger value log GC failed")
			}
			break
		}
		rewrites++
	}
	if rewrites > 0 {
		logging.Info().
			Int("rewrites", rewrites).
			Dur("elapsed", time.Since(start)).
			Msg("Badger value log GC complete")
	}
}
