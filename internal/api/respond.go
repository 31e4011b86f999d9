// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/learnloop/learnloop/internal/logging"
)

// errorBody is the uniform error response shape.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`

	// RetryAfter is set on 429 responses, in seconds.
	RetryAfter int `json:"retryAfter,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: code, Message: message})
}

// respondValidationError returns a 400 with the field-level violation list.
func respondValidationError(w http.ResponseWriter, fields map[string]string) {
	respondJSON(w, http.StatusBadRequest, errorBody{
		Error:   "VALIDATION_FAILED",
		Message: "request validation failed",
		Fields:  fields,
	})
}

// respondUnauthorized is deliberately generic: it never reveals whether an
// account exists or which check failed.
func respondUnauthorized(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
}
