// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package services holds the long-running workers supervised by the
// authd tree: maintenance sweepers, Badger value-log GC, and the HTTP
// listener itself.
package services

import (
	"context"
	"time"

	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/session"
)

// SessionSweeper periodically removes expired sessions from the stores.
// Expired sessions are already unusable for refresh; the sweeper only
// reclaims storage.
type SessionSweeper struct {
	sessions *session.Manager
	interval time.Duration
}

// NewSessionSweeper creates a sweeper running at the given interval.
func NewSessionSweeper(sessions *session.Manager, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionSweeper{sessions: sessions, interval: interval}
}

func (s *SessionSweeper) String() string { return "session-sweeper" }

// Serve runs sweep cycles until the context is canceled.
func (s *SessionSweeper) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Msg("Session sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Session sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	start := time.Now()
	removed, err := s.sessions.CleanupExpired(ctx)
	if err != nil {
		logging.Err(err).Msg("Session sweep failed")
		return
	}
	if removed > 0 {
		logging.Info().
			Int("removed", removed).
			Dur("elapsed", time.Since(start)).
			Msg("Session sweep complete")
	}
}
