// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
	testCSRFSecret    = "test-csrf-secret-0123456789abcdefgh"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("LEARNLOOP_SECURITY_JWT_ACCESS_SECRET", testAccessSecret)
	t.Setenv("LEARNLOOP_SECURITY_JWT_REFRESH_SECRET", testRefreshSecret)
	t.Setenv("LEARNLOOP_SECURITY_CSRF_SECRET", testCSRFSecret)
}

func TestLoadDefaultsWithEnvSecrets(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Security.AccessTokenTTL != 15*time.Minute {
		t.Errorf("expected default access TTL 15m, got %v", cfg.Security.AccessTokenTTL)
	}
	if cfg.Security.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("expected default refresh TTL 168h, got %v", cfg.Security.RefreshTokenTTL)
	}
	if cfg.Audit.BufferCapacity != 100 {
		t.Errorf("expected default audit buffer 100, got %d", cfg.Audit.BufferCapacity)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("LEARNLOOP_SERVER_PORT", "9090")
	t.Setenv("LEARNLOOP_LOGGING_LEVEL", "debug")
	t.Setenv("LEARNLOOP_SECURITY_ACCESS_TOKEN_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Security.AccessTokenTTL != 5*time.Minute {
		t.Errorf("expected access TTL 5m, got %v", cfg.Security.AccessTokenTTL)
	}
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	setRequiredSecrets(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: 9000\nlogging:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LEARNLOOP_LOGGING_LEVEL", "error")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("file value not applied, port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("env must override file, level = %s", cfg.Logging.Level)
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	// No secrets in the environment.
	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure without secrets")
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("LEARNLOOP_SECURITY_JWT_ACCESS_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure for short secret")
	}
}

func TestLoadRejectsIdenticalSecrets(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("LEARNLOOP_SECURITY_JWT_REFRESH_SECRET", testAccessSecret)

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation failure for identical secrets")
	}
	if !strings.Contains(err.Error(), "must differ") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRejectsAccessTTLNotShorterThanRefresh(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("LEARNLOOP_SECURITY_ACCESS_TOKEN_TTL", "200h")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure for access TTL >= refresh TTL")
	}
}

func TestEnvTransform(t *testing.T) {
	cases := []struct{ in, want string }{
		{"LEARNLOOP_SERVER_PORT", "server.port"},
		{"LEARNLOOP_SECURITY_JWT_ACCESS_SECRET", "security.jwt_access_secret"},
		{"LEARNLOOP_AUDIT_BUFFER_CAPACITY", "audit.buffer_capacity"},
		{"LEARNLOOP_UNKNOWN_THING", ""},
	}
	for _, c := range cases {
		if got := envTransform(c.in); got != c.want {
			t.Errorf("envTransform(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
