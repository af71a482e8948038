// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Dreamlog HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Open the document store (PostgreSQL with migrations, or in-memory).
//  4. Connect to Redis and start the session event broker.
//  5. Wire domain services and HTTP handlers.
//  6. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/taibuivan/dreamlog/internal/api"
	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/backup"
	"github.com/taibuivan/dreamlog/internal/blog/comment"
	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/blog/subscriber"
	"github.com/taibuivan/dreamlog/internal/identity"
	"github.com/taibuivan/dreamlog/internal/platform/config"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
	"github.com/taibuivan/dreamlog/internal/platform/metrics"
	"github.com/taibuivan/dreamlog/internal/platform/migration"
	pgstore "github.com/taibuivan/dreamlog/internal/platform/postgres"
	redisstore "github.com/taibuivan/dreamlog/internal/platform/redis"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
	"github.com/taibuivan/dreamlog/internal/users"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("store_backend", cfg.StoreBackend),
		slog.Bool("backups_enabled", cfg.BackupsEnabled()),
	)

	// Background workers live until shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Misconfiguration should fail fast rather than hang.
	startupCtx, startupCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer startupCancel()

	var checks []api.DependencyCheck

	// ── 3. Document Store ─────────────────────────────────────────────────
	var store docstore.Store
	switch cfg.StoreBackend {
	case config.StorePostgres:
		must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

		pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing_postgres_pool")
			pool.Close()
		}()

		store = docstore.NewPostgresStore(pool)
		checks = append(checks, api.DependencyCheck{
			Name:  "postgres",
			Probe: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) },
		})
	default:
		log.Warn("memory_store_enabled", slog.String("reason", "documents are lost on restart"))
		store = docstore.NewMemoryStore()
	}

	// ── 4. Redis & Session Events ─────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing_redis_client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_failed", slog.Any("error", cerr))
		}
	}()
	checks = append(checks, api.DependencyCheck{
		Name:  "redis",
		Probe: func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) },
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	broker := identity.NewBroker(rdb, m, log)
	must(log, broker.Start(rootCtx), "start session broker")

	// ── 5. Domain Wiring ──────────────────────────────────────────────────
	tokens, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	accounts := identity.NewAccountRepository(store)
	sessions := identity.NewSessionRepository(rdb)

	access := authz.NewService(store, log,
		authz.WithDirectory(accounts),
		authz.WithNotifier(broker),
		authz.WithMetrics(m),
		authz.WithCooldown(cfg.PetitionCooldown),
	)

	identityService := identity.NewService(identity.Dependencies{
		Accounts: accounts,
		Sessions: sessions,
		Resets:   identity.NewResetTokenRepository(rdb),
		Tokens:   tokens,
		Events:   broker,
		Metrics:  m,
		Logger:   log,
	})

	usersService := users.NewService(users.NewProfileRepository(store), access, identityService, log)

	postRepository := post.NewPostRepository(store)
	categoryRepository := post.NewCategoryRepository(store)

	// Deleting a post purges its thread; the comment service in turn reads posts.
	var comments *comment.Service
	purge := post.CommentPurgerFunc(func(ctx context.Context, postID string) error {
		return comments.DeleteForPost(ctx, postID)
	})
	posts := post.NewService(postRepository, categoryRepository, access, log, post.WithCommentPurger(purge))
	comments = comment.NewService(comment.NewRepository(store), posts, access, log)

	var backupOptions []backup.Option
	if cfg.BackupsEnabled() {
		client, err := backup.NewS3Client(startupCtx, backup.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		must(log, err, "initialize backup storage")
		backupOptions = append(backupOptions, backup.WithObjectStore(backup.NewS3Store(client, cfg.S3Bucket, "backups")))
	}
	backups := backup.NewService(postRepository, categoryRepository, posts, access, log, backupOptions...)

	// ── 6. HTTP Server ────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(checks, log)

	handlers := api.Handlers{
		Liveness:    liveness,
		Readiness:   readiness,
		Metrics:     metrics.Handler(registry),
		Access:      access,
		Identity:    identity.NewHandler(identityService, cfg.IsDevelopment()),
		Authz:       authz.NewHandler(access, identity.NewPresenceTracker(broker, sessions), cfg.GuardInterval, log),
		Users:       users.NewHandler(usersService),
		Posts:       post.NewHandler(posts),
		Comments:    comment.NewHandler(comments),
		Subscribers: subscriber.NewHandler(subscriber.NewService(subscriber.NewRepository(store), access, log)),
		Backups:     backup.NewHandler(backups),
	}

	server := api.NewServer(rootCtx, cfg, log, tokens, m, handlers)

	// ── 7. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_failed", slog.Any("error", err))
	}

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("server_shutting_down", slog.Duration("timeout", shutdownTimeout))

	rootCancel()
	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown_failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped")
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned and
// handled explicitly.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("step", step),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
