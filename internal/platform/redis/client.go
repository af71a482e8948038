// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis provides the managed client for volatile identity data.

Dreamlog keeps refresh sessions, password reset tokens and the session event
channel in Redis. All of it expires or can be rebuilt by signing in again, so
nothing here is a source of truth for authorization; roles live in the
document store.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/dreamlog/internal/platform/constants"
)

const pingTimeout = 2 * time.Second

// tune applies the pool settings of one API instance. The session broker holds
// one extra connection for its pub/sub subscription outside the pool.
func tune(options *redis.Options) {
	options.ClientName = constants.AppName
	options.PoolSize = 10
	options.MinIdleConns = 2
	options.DialTimeout = 3 * time.Second
	options.ReadTimeout = 2 * time.Second
	options.WriteTimeout = 2 * time.Second
}

// NewClient connects to redisURL and pings it once. A URL without a password
// is accepted; a URL that cannot be parsed is not.
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis_url_invalid: %w", err)
	}
	tune(options)

	client := redis.NewClient(options)
	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
	)
	return client, nil
}

// Ping reports whether the server answers within two seconds.
func Ping(context stdctx.Context, client redis.UniversalClient) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis_ping_failed: %w", err)
	}
	return nil
}
