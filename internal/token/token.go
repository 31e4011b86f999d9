// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package token issues and verifies the signed access and refresh tokens
// used by the LearnLoop authentication core.
//
// Access and refresh tokens are signed with distinct secrets so that a leak
// of one secret cannot forge tokens of the other type. All verification
// failures collapse to ErrInvalidToken; callers decide the HTTP response.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a LearnLoop account role. Exactly one role per account.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor || r == RoleAdmin
}

// RoleFlags are the capability booleans derived from a role. They are
// computed by FlagsForRole at issuance time only and never accepted from
// untrusted input, so the role string and the flags always agree.
type RoleFlags struct {
	IsStudent    bool `json:"isStudent"`
	IsInstructor bool `json:"isInstructor"`
	IsAdmin      bool `json:"isAdmin"`
}

// FlagsForRole derives the capability flags for a role. Exactly one flag is
// true for a valid role; all are false for an unknown role.
func FlagsForRole(role Role) RoleFlags {
	return RoleFlags{
		IsStudent:    role == RoleStudent,
		IsInstructor: role == RoleInstructor,
		IsAdmin:      role == RoleAdmin,
	}
}

// Identity is the immutable user identity embedded in access tokens.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}

// AccessClaims are the claims carried by a short-lived access token.
type AccessClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	RoleFlags
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token. Deliberately
// minimal: no mutable profile data, so refresh tokens survive profile edits.
type RefreshClaims struct {
	UserID       string `json:"userId"`
	Role         Role   `json:"role"`
	SessionID    string `json:"sessionId"`
	TokenVersion int64  `json:"tokenVersion"`
	jwt.RegisteredClaims
}

// Token errors.
var (
	// ErrInvalidToken covers malformed, expired, and badly-signed tokens.
	// Verification is fail-closed; no other error escapes Verify*.
	ErrInvalidToken = errors.New("invalid token")
)

const minSecretLength = 32

// Config holds Authority configuration.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Authority issues and verifies access and refresh tokens. It is stateless;
// methods are safe for concurrent use.
type Authority struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewAuthority creates a token Authority. Both secrets must be at least 32
// characters and must differ from each other.
func NewAuthority(cfg Config) (*Authority, error) {
	if len(cfg.AccessSecret) < minSecretLength {
		return nil, fmt.Errorf("access token secret must be at least %d characters", minSecretLength)
	}
	if len(cfg.RefreshSecret) < minSecretLength {
		return nil, fmt.Errorf("refresh token secret must be at least %d characters", minSecretLength)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	return &Authority{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (a *Authority) AccessTTL() time.Duration { return a.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (a *Authority) RefreshTTL() time.Duration { return a.refreshTTL }

// IssueAccessToken mints a signed access token for the identity. Capability
// flags are derived from the role here and nowhere else.
func (a *Authority) IssueAccessToken(id Identity) (string, error) {
	if !id.Role.Valid() {
		return "", fmt.Errorf("unknown role %q", id.Role)
	}

	now := time.Now()
	claims := &AccessClaims{
		UserID:    id.UserID,
		Email:     id.Email,
		Name:      id.Name,
		Role:      id.Role,
		RoleFlags: FlagsForRole(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    a.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken mints a signed refresh token bound to a session and its
// rotation version at issuance time.
func (a *Authority) IssueRefreshToken(userID string, role Role, sessionID string, version int64) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := time.Now()
	claims := &RefreshClaims{
		UserID:       userID,
		Role:         role,
		SessionID:    sessionID,
		TokenVersion: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token's signature and time claims.
// Any failure returns (nil, ErrInvalidToken).
func (a *Authority) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := a.verify(tokenString, claims, a.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token's signature and time claims.
// Any failure returns (nil, ErrInvalidToken).
func (a *Authority) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := a.verify(tokenString, claims, a.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (a *Authority) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject anything other than HMAC to prevent algorithm confusion.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// DecodeUnsafe decodes access token claims without verifying the signature.
// For expiry introspection only; never use the result for authorization.
func (a *Authority) DecodeUnsafe(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
