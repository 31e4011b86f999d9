// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package password provides credential hashing, verification, and strength
// checking for LearnLoop accounts.
package password

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor. Deliberately slow; hashing is
// offloaded from request-latency-critical paths by the callers.
const DefaultCost = 12

// Hasher hashes and verifies passwords with a configurable bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher. Costs below bcrypt.MinCost fall back to DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of plaintext with a per-call random salt.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored hash.
// bcrypt's comparison is timing-safe. A malformed hash verifies false,
// never panics or errors.
func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// StrengthPolicy defines the requirements a new password must meet.
type StrengthPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSymbol    bool
}

// DefaultStrengthPolicy returns the policy applied to LearnLoop accounts.
func DefaultStrengthPolicy() StrengthPolicy {
	return StrengthPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSymbol:    true,
	}
}

// StrengthResult reports whether a password meets the policy, with every
// violated rule listed rather than only the first.
type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// charClasses holds the results of character class analysis.
type charClasses struct {
	hasUpper  bool
	hasLower  bool
	hasDigit  bool
	hasSymbol bool
}

func analyzeCharClasses(plaintext string) charClasses {
	var c charClasses
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			c.hasUpper = true
		case unicode.IsLower(r):
			c.hasLower = true
		case unicode.IsDigit(r):
			c.hasDigit = true
		default:
			c.hasSymbol = true
		}
	}
	return c
}

// CheckStrength validates plaintext against the policy.
func (p StrengthPolicy) CheckStrength(plaintext string) StrengthResult {
	var errs []string

	if len(plaintext) < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}

	classes := analyzeCharClasses(plaintext)
	if p.RequireUppercase && !classes.hasUpper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLowercase && !classes.hasLower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireDigit && !classes.hasDigit {
		errs = append(errs, "password must contain a digit")
	}
	if p.RequireSymbol && !classes.hasSymbol {
		errs = append(errs, "password must contain a symbol")
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}
