// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package services

import (
	"context"
	"time"

	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/ratelimit"
)

// RateLimitSweeper evicts expired rate-limit entries from the tracked
// limiters so idle identifiers do not accumulate.
type RateLimitSweeper struct {
	limiters map[string]*ratelimit.Limiter
	interval time.Duration
}

// NewRateLimitSweeper creates a sweeper over the named limiters.
func NewRateLimitSweeper(limiters map[string]*ratelimit.Limiter, interval time.Duration) *RateLimitSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RateLimitSweeper{limiters: limiters, interval: interval}
}

func (s *RateLimitSweeper) String() string { return "ratelimit-sweeper" }

// Serve runs sweep cycles until the context is canceled.
func (s *RateLimitSweeper) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Int("limiters", len(s.limiters)).
		Msg("Rate limit sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Rate limit sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			for name, limiter := range s.limiters {
				evicted := limiter.Sweep()
				if evicted > 0 {
					logging.Debug().
						Str("limiter", name).
						Int("evicted", evicted).
						Msg("Rate limit entries swept")
				}
			}
		}
	}
}
