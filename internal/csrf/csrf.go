// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package csrf provides stateless anti-CSRF tokens using the double-submit
// cookie pattern. Tokens are self-contained (random value, expiry, HMAC
// signature) so validity needs no server-side store.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token wire format: "<random-hex>:<expiry-epoch-millis>:<hmac-hex>".
const tokenParts = 3

const (
	tokenBytes = 32
	defaultTTL = 24 * time.Hour
)

const minSecretLength = 32

// Guard issues and verifies signed CSRF tokens.
type Guard struct {
	secret []byte
	ttl    time.Duration
}

// NewGuard creates a Guard. The secret must be at least 32 characters.
func NewGuard(secret string, ttl time.Duration) (*Guard, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("CSRF secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Guard{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (g *Guard) TTL() time.Duration { return g.ttl }

// Issue mints a new signed token.
func (g *Guard) Issue() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate CSRF token: %w", err)
	}

	random := hex.EncodeToString(raw)
	expiry := strconv.FormatInt(time.Now().Add(g.ttl).UnixMilli(), 10)
	return random + ":" + expiry + ":" + g.sign(random, expiry), nil
}

// Verify reports whether a signed token is well-formed, unexpired, and
// carries a valid signature. Never panics on malformed input.
func (g *Guard) Verify(signedToken string) bool {
	parts := strings.Split(signedToken, ":")
	if len(parts) != tokenParts {
		return false
	}
	random, expiry, signature := parts[0], parts[1], parts[2]

	expiryMillis, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return false
	}
	if time.Now().UnixMilli() >= expiryMillis {
		return false
	}

	expected := g.sign(random, expiry)
	// hmac.Equal is constant-time; the length check avoids comparing
	// dissimilar-length buffers at all.
	if len(signature) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (g *Guard) sign(random, expiry string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(random + ":" + expiry))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validation failure causes. Logged distinctly; clients receive one generic
// message so the failing check is not leaked.
var (
	ErrTokenMissing  = errors.New("CSRF token missing")
	ErrTokenMismatch = errors.New("CSRF token mismatch")
	ErrTokenInvalid  = errors.New("CSRF token invalid")
)
