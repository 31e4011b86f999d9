// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

// Package main is the entry point for the LearnLoop authentication service.
//
// authd owns accounts, credentials, and sessions for the LearnLoop
// e-learning platform: JWT issuance and verification, refresh token
// rotation with reuse detection, login rate limiting, CSRF protection,
// and a persistent security audit trail.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config file, and
//     LEARNLOOP_* environment variables (Koanf v2)
//  2. BadgerDB: embedded store for sessions and audit events
//  3. Audit logger: buffered pipeline over the Badger audit store
//  4. Session manager: durable store with circuit breaker and in-memory
//     degraded-mode fallback
//  5. Token authority: HS256 access/refresh signing with distinct secrets
//  6. CSRF guard: stateless double-submit tokens
//  7. HTTP server: Chi route tree under /api/auth
//  8. Supervisor tree: session/rate-limit sweepers, Badger GC, listener
//
// # Configuration
//
// All three secrets are required and must be at least 32 characters:
//
//	export LEARNLOOP_SECURITY_JWT_ACCESS_SECRET=$(openssl rand -base64 32)
//	export LEARNLOOP_SECURITY_JWT_REFRESH_SECRET=$(openssl rand -base64 32)
//	export LEARNLOOP_SECURITY_CSRF_SECRET=$(openssl rand -base64 32)
//	./authd
//
// An optional bootstrap admin account is seeded when both
// LEARNLOOP_SECURITY_ADMIN_EMAIL and LEARNLOOP_SECURITY_ADMIN_PASSWORD
// are set.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the listener
// stops accepting connections, in-flight requests drain within the
// shutdown timeout, the audit buffer flushes, and BadgerDB closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/learnloop/learnloop/internal/api"
	"github.com/learnloop/learnloop/internal/audit"
	"github.com/learnloop/learnloop/internal/config"
	"github.com/learnloop/learnloop/internal/csrf"
	"github.com/learnloop/learnloop/internal/logging"
	"github.com/learnloop/learnloop/internal/password"
	"github.com/learnloop/learnloop/internal/ratelimit"
	"github.com/learnloop/learnloop/internal/session"
	"github.com/learnloop/learnloop/internal/supervisor"
	"github.com/learnloop/learnloop/internal/supervisor/services"
	"github.com/learnloop/learnloop/internal/token"
	"github.com/learnloop/learnloop/internal/users"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting LearnLoop authd")

	// Open BadgerDB. An empty path runs memory-only: fine for development,
	// but sessions and the audit trail vanish on restart.
	var badgerOpts badger.Options
	if cfg.Badger.Path == "" {
		logging.Warn().Msg("Badger path is empty, running memory-only: sessions and audit events will not survive restarts")
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(cfg.Badger.Path)
	}
	badgerOpts.Logger = nil

	db, err := badger.Open(badgerOpts)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Badger.Path).Msg("Failed to open BadgerDB")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing BadgerDB")
		}
	}()
	logging.Info().Str("path", cfg.Badger.Path).Msg("BadgerDB opened")

	// Audit pipeline. Closed after the supervisor tree stops so shutdown
	// events still land in the store.
	auditLogger := audit.NewLogger(audit.NewBadgerStore(db), audit.Config{
		BufferCapacity: cfg.Audit.BufferCapacity,
		FlushInterval:  cfg.Audit.FlushInterval,
		StoreTimeout:   cfg.Audit.StoreTimeout,
	})
	defer auditLogger.Close()

	// Session manager: durable Badger store behind a circuit breaker with
	// an in-memory fallback for degraded mode.
	sessions := session.NewManager(session.NewBadgerStore(db), auditLogger, cfg.Session.TTL)

	authority, err := token.NewAuthority(token.Config{
		AccessSecret:  cfg.Security.JWTAccessSecret,
		RefreshSecret: cfg.Security.JWTRefreshSecret,
		AccessTTL:     cfg.Security.AccessTokenTTL,
		RefreshTTL:    cfg.Security.RefreshTokenTTL,
		Issuer:        "learnloop",
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token authority")
	}

	guard, err := csrf.NewGuard(cfg.Security.CSRFSecret, cfg.Security.CSRFTokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize CSRF guard")
	}
	csrfConfig := csrf.DefaultMiddlewareConfig()
	csrfConfig.CookieSecure = cfg.Security.SecureCookies
	csrfConfig.OnReject = func(r *http.Request, cause string) {
		auditLogger.CSRFFailure(audit.SourceFromRequest(r), cause)
	}
	csrfMiddleware := csrf.NewMiddleware(guard, csrfConfig)

	if !cfg.Security.SecureCookies {
		logging.Warn().Msg("Secure cookies are disabled. Enable LEARNLOOP_SECURITY_SECURE_COOKIES behind TLS in production")
	}

	hasher := password.NewHasher(cfg.Security.BcryptCost)
	directory := users.NewMemoryDirectory()
	seedAdmin(directory, hasher, cfg)

	loginLimiter := ratelimit.NewLimiter(ratelimit.LoginConfig())

	server := api.NewServer(api.Config{
		Users:         directory,
		Hasher:        hasher,
		Policy:        password.DefaultStrengthPolicy(),
		Authority:     authority,
		Sessions:      sessions,
		CSRF:          csrfMiddleware,
		Audit:         auditLogger,
		LoginLimiter:  loginLimiter,
		SecureCookies: cfg.Security.SecureCookies,
	})

	router := server.Router(api.RouterOptions{
		CORSOrigins:           cfg.Server.CORSOrigins,
		AuthRequestsPerMinute: cfg.Server.AuthRequestsPerMinute,
		GlobalRateLimit:       cfg.Server.GlobalRateLimit,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	treeConfig := supervisor.DefaultTreeConfig()
	treeConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeConfig)

	tree.AddMaintenanceService(services.NewSessionSweeper(sessions, cfg.Session.SweepInterval))
	tree.AddMaintenanceService(services.NewRateLimitSweeper(
		map[string]*ratelimit.Limiter{"login": loginLimiter},
		cfg.Session.SweepInterval,
	))
	if cfg.Badger.Path != "" {
		tree.AddMaintenanceService(services.NewBadgerGC(db, cfg.Badger.GCInterval))
	}
	tree.AddAPIService(services.NewHTTPServer(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("authd stopped gracefully")
}

// seedAdmin creates the bootstrap admin account when configured. The
// directory is in-memory; without this there is no way to log in on a
// fresh deployment.
func seedAdmin(directory *users.MemoryDirectory, hasher *password.Hasher, cfg *config.Config) {
	if cfg.Security.AdminEmail == "" || cfg.Security.AdminPassword == "" {
		logging.Warn().Msg("No bootstrap admin configured (LEARNLOOP_SECURITY_ADMIN_EMAIL / LEARNLOOP_SECURITY_ADMIN_PASSWORD)")
		return
	}

	hash, err := hasher.Hash(cfg.Security.AdminPassword)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to hash bootstrap admin password")
	}

	name := cfg.Security.AdminName
	if name == "" {
		name = "Administrator"
	}

	admin := directory.Add(users.User{
		Name:         name,
		Email:        cfg.Security.AdminEmail,
		PasswordHash: hash,
		Role:         token.RoleAdmin,
	})
	logging.Info().
		Str("user_id", admin.ID).
		Str("email", admin.Email).
		Msg("Bootstrap admin account created")
}
