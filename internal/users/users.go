// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package users provides user lookup for the authentication core. The
// production directory is backed by the platform's relational database;
// this package defines the interface the core needs plus an in-memory
// implementation for bootstrap, development, and tests.
package users

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/learnloop/learnloop/internal/token"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is one platform account as the authentication core sees it.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         token.Role `json:"role"`
}

// Identity converts the user to its token identity.
func (u *User) Identity() token.Identity {
	return token.Identity{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
}

// Directory is the user lookup interface the authentication core depends
// on. Email comparisons are case-insensitive.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// MemoryDirectory is an in-memory Directory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// Add registers a user, assigning an ID when absent. Returns the stored
// user.
func (d *MemoryDirectory) Add(u User) *User {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	stored := u
	d.byID[stored.ID] = &stored
	d.byEmail[strings.ToLower(stored.Email)] = stored.ID
	return &stored
}

// FindByEmail retrieves a user by email, case-insensitively.
func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *d.byID[id]
	return &copied, nil
}

// FindByID retrieves a user by ID.
func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// SetPasswordHash replaces the stored credential hash.
func (d *MemoryDirectory) SetPasswordHash(ctx context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}
