// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package config loads the authd configuration with layered sources:
// built-in defaults, an optional YAML file, then environment variables.
// Precedence: ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/learnloop/config.yaml",
	"/etc/learnloop/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "LEARNLOOP_CONFIG_PATH"

// envPrefix namespaces all environment overrides: LEARNLOOP_SERVER_PORT,
// LEARNLOOP_SECURITY_JWT_ACCESS_SECRET, and so on.
const envPrefix = "LEARNLOOP_"

// Config is the complete authd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Session  SessionConfig  `koanf:"session"`
	Audit    AuditConfig    `koanf:"audit"`
	Badger   BadgerConfig   `koanf:"badger"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins is the allowed browser origin list. Empty disables CORS.
	CORSOrigins []string `koanf:"cors_origins"`

	// GlobalRateLimit caps requests per second across the whole listener.
	// Zero disables the throttle.
	GlobalRateLimit float64 `koanf:"global_rate_limit"`

	// AuthRequestsPerMinute is the coarse per-IP cap on /api/auth routes,
	// separate from the per-identifier attempt limiter.
	AuthRequestsPerMinute int `koanf:"auth_requests_per_minute"`
}

// SecurityConfig holds secrets and token lifetimes. All three secrets are
// required, at least 32 bytes, and pairwise distinct.
type SecurityConfig struct {
	JWTAccessSecret  string `koanf:"jwt_access_secret" validate:"required,min=32"`
	JWTRefreshSecret string `koanf:"jwt_refresh_secret" validate:"required,min=32"`
	CSRFSecret       string `koanf:"csrf_secret" validate:"required,min=32"`

	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
	CSRFTokenTTL    time.Duration `koanf:"csrf_token_ttl"`

	// SecureCookies marks auth cookies Secure. Enable behind TLS.
	SecureCookies bool `koanf:"secure_cookies"`

	// BcryptCost for new password hashes.
	BcryptCost int `koanf:"bcrypt_cost" validate:"min=4,max=31"`

	// AdminEmail and AdminPassword seed a bootstrap admin account at
	// startup when both are set. AdminName is optional.
	AdminEmail    string `koanf:"admin_email" validate:"omitempty,email"`
	AdminName     string `koanf:"admin_name"`
	AdminPassword string `koanf:"admin_password" validate:"omitempty,min=8"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// AuditConfig holds audit pipeline settings.
type AuditConfig struct {
	BufferCapacity int           `koanf:"buffer_capacity" validate:"min=1"`
	FlushInterval  time.Duration `koanf:"flush_interval"`
	StoreTimeout   time.Duration `koanf:"store_timeout"`
}

// BadgerConfig holds the durable store settings.
type BadgerConfig struct {
	// Path is the BadgerDB directory. Empty runs memory-only (dev mode).
	Path string `koanf:"path"`

	// GCInterval is the value-log garbage collection period.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults. Secrets have no default and
// must come from file or environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  8080,
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          15 * time.Second,
			IdleTimeout:           60 * time.Second,
			ShutdownTimeout:       30 * time.Second,
			GlobalRateLimit:       0,
			AuthRequestsPerMinute: 60,
		},
		Security: SecurityConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			CSRFTokenTTL:    24 * time.Hour,
			SecureCookies:   false,
			BcryptCost:      12,
		},
		Session: SessionConfig{
			TTL:           7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Audit: AuditConfig{
			BufferCapacity: 100,
			FlushInterval:  30 * time.Second,
			StoreTimeout:   5 * time.Second,
		},
		Badger: BadgerConfig{
			Path:       "/data/learnloop",
			GCInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// LEARNLOOP_ environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// LEARNLOOP_SERVER_PORT -> server.port
	// LEARNLOOP_SECURITY_JWT_ACCESS_SECRET -> security.jwt_access_secret
	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// sections are the known top-level config groups the env transform maps
// variable names onto.
var sections = []string{"server", "security", "session", "audit", "badger", "logging"}

// envTransform maps LEARNLOOP_SECTION_SOME_KEY to section.some_key.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range sections {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return ""
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks structural constraints plus the cross-field secret rules
// the tag validator cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// Distinct secrets: a leaked refresh secret must not mint access
	// tokens, and vice versa.
	if c.Security.JWTAccessSecret == c.Security.JWTRefreshSecret {
		return fmt.Errorf("security.jwt_access_secret and security.jwt_refresh_secret must differ")
	}
	if c.Security.CSRFSecret == c.Security.JWTAccessSecret || c.Security.CSRFSecret == c.Security.JWTRefreshSecret {
		return fmt.Errorf("security.csrf_secret must differ from the JWT secrets")
	}

	if c.Security.AccessTokenTTL <= 0 || c.Security.RefreshTokenTTL <= 0 || c.Security.CSRFTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Security.AccessTokenTTL >= c.Security.RefreshTokenTTL {
		return fmt.Errorf("security.access_token_ttl must be shorter than security.refresh_token_ttl")
	}
	return nil
}
