// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package api

import (
	"context"

	"github.com/learnloop/learnloop/internal/token"
)

type contextKey string

const identityContextKey contextKey = "auth_identity"

// authIdentity is the per-request authentication state attached by the
// middleware.
type authIdentity struct {
	Claims    *token.AccessClaims
	SessionID string
}

func withIdentity(ctx context.Context, id *authIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// identityFrom returns the authenticated identity, or nil when the request
// did not authenticate.
func identityFrom(ctx context.Context) *authIdentity {
	id, _ := ctx.Value(identityContextKey).(*authIdentity)
	return id
}
