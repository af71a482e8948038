// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

Variables are read from the process environment with 'caarlos0/env'. For local
development an optional .env file is loaded first through 'joho/godotenv';
values already present in the environment always win.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends accepted by STORE_BACKEND.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// # Configuration Schema

// Config holds all runtime configuration for the Dreamlog API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// StoreBackend selects the document store implementation.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`

	// Document store (PostgreSQL JSONB)
	DatabaseURL string `env:"DATABASE_URL"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Sessions, reset tokens and session events (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// RS256 key pair for access tokens
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// Backup object storage (S3-compatible). Backups are disabled when S3Bucket is empty.
	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION"        envDefault:"auto"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`

	// Cross-Origin Resource Sharing
	ExtraOrigins []string `env:"EXTRA_ORIGINS" envSeparator:","`

	// Authorization tuning
	PetitionCooldown time.Duration `env:"PETITION_COOLDOWN" envDefault:"720h"`
	GuardInterval    time.Duration `env:"GUARD_INTERVAL"    envDefault:"5s"`
}

// # Configuration Loading

// Load reads an optional .env file and parses environment variables into a [Config].
func Load() (*Config, error) {

	// A missing .env file is the normal case outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env file: %w", err)
	}

	return Parse()
}

// Parse maps the current environment onto a [Config] without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unsupported STORE_BACKEND %q", c.StoreBackend)
	}

	if c.PetitionCooldown <= 0 {
		return errors.New("config: PETITION_COOLDOWN must be positive")
	}
	if c.GuardInterval <= 0 {
		return errors.New("config: GUARD_INTERVAL must be positive")
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the extra CORS origins configured for the deployment.
func (c *Config) AllowedOrigins() []string {
	return c.ExtraOrigins
}

// BackupsEnabled reports whether an object store is configured for backups.
func (c *Config) BackupsEnabled() bool {
	return c.S3Bucket != ""
}
