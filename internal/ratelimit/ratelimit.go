// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package ratelimit implements the windowed attempt counter with lockout
// used to slow brute-force attacks on login, signup, and password reset.
//
// Each configured flow gets its own Limiter instance; entries are keyed by
// an identifier string (client IP or account email). This is a process-local
// store by design; replace the Limiter behind its call sites for a
// distributed deployment.
package ratelimit

import (
	"sync"
	"time"
)

// Config parameterizes one Limiter.
type Config struct {
	// Window is the length of an attempt-counting window.
	Window time.Duration

	// MaxAttempts is the number of attempts allowed within a window.
	MaxAttempts int

	// BlockDuration is how long an identifier stays blocked after
	// exceeding MaxAttempts.
	BlockDuration time.Duration
}

// Preset configurations, one per flow.
func LoginConfig() Config {
	return Config{Window: 15 * time.Minute, MaxAttempts: 5, BlockDuration: 30 * time.Minute}
}

func SignupConfig() Config {
	return Config{Window: time.Hour, MaxAttempts: 3, BlockDuration: time.Hour}
}

func PasswordResetConfig() Config {
	return Config{Window: time.Hour, MaxAttempts: 3, BlockDuration: 2 * time.Hour}
}

// Result describes the limiter's decision for one identifier.
type Result struct {
	// Limited is true when the identifier is currently blocked.
	Limited bool

	// Remaining is the number of attempts left in the window.
	Remaining int

	// ResetTime is when the current window (or block) ends.
	ResetTime time.Time

	// RetryAfter is the whole seconds until the block lifts; zero when
	// not limited.
	RetryAfter int
}

type entry struct {
	count      int
	resetTime  time.Time
	blocked    bool
	blockUntil time.Time
}

// Limiter is a windowed attempt counter with lockout. Check-and-increment is
// atomic under one mutex so concurrent requests cannot both slip under the
// limit.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*entry
}

// NewLimiter creates a Limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		config:  config,
		entries: make(map[string]*entry),
	}
}

// Check records an attempt for identifier and returns the resulting state.
// Every call counts as an attempt unless the identifier is already blocked.
func (l *Limiter) Check(identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.entries[identifier]
	if !ok {
		e = &entry{count: 1, resetTime: now.Add(l.config.Window)}
		l.entries[identifier] = e
		return l.allowed(e)
	}

	// Block status is evaluated before window expiry so a block outlasts
	// its triggering window.
	if e.blocked {
		if now.Before(e.blockUntil) {
			return l.blockedResult(e, now)
		}
		// Block lifted: fresh window, this call counts.
		*e = entry{count: 1, resetTime: now.Add(l.config.Window)}
		return l.allowed(e)
	}

	if now.After(e.resetTime) {
		*e = entry{count: 1, resetTime: now.Add(l.config.Window)}
		return l.allowed(e)
	}

	e.count++
	if e.count > l.config.MaxAttempts {
		e.blocked = true
		e.blockUntil = now.Add(l.config.BlockDuration)
		return l.blockedResult(e, now)
	}
	return l.allowed(e)
}

// Status returns the identifier's state without counting an attempt.
func (l *Limiter) Status(identifier string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.entries[identifier]
	if !ok {
		return Result{Remaining: l.config.MaxAttempts, ResetTime: now.Add(l.config.Window)}
	}

	if e.blocked && now.Before(e.blockUntil) {
		return l.blockedResult(e, now)
	}
	if e.blocked || now.After(e.resetTime) {
		return Result{Remaining: l.config.MaxAttempts, ResetTime: now.Add(l.config.Window)}
	}

	remaining := l.config.MaxAttempts - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Remaining: remaining, ResetTime: e.resetTime}
}

// Reset clears the attempt history for identifier. Called after a successful
// login so successful auth events never count toward lockout.
func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, identifier)
}

func (l *Limiter) allowed(e *entry) Result {
	remaining := l.config.MaxAttempts - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Remaining: remaining, ResetTime: e.resetTime}
}

func (l *Limiter) blockedResult(e *entry, now time.Time) Result {
	retryAfter := int(e.blockUntil.Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Result{
		Limited:    true,
		Remaining:  0,
		ResetTime:  e.blockUntil,
		RetryAfter: retryAfter,
	}
}

// Sweep removes entries whose window and block have fully elapsed, bounding
// memory. Returns the number of entries removed. Safe to call on any
// schedule.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, e := range l.entries {
		if e.blocked && now.Before(e.blockUntil) {
			continue
		}
		if !e.blocked && now.Before(e.resetTime) {
			continue
		}
		delete(l.entries, id)
		removed++
	}
	return removed
}

// Len returns the number of tracked identifiers. For tests and metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
