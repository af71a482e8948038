// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command bootstrap creates the first super admin account.
//
// It registers a new account and promotes it to super_admin. It refuses to run
// once a super admin exists. The password is read from DREAMLOG_BOOTSTRAP_PASSWORD
// so that it does not end up in shell history.
//
//	DREAMLOG_BOOTSTRAP_PASSWORD=... bootstrap -email owner@example.com -name Owner
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/identity"
	"github.com/taibuivan/dreamlog/internal/platform/config"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
	"github.com/taibuivan/dreamlog/internal/platform/migration"
	pgstore "github.com/taibuivan/dreamlog/internal/platform/postgres"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
	"github.com/taibuivan/dreamlog/internal/users"
)

const passwordEnv = "DREAMLOG_BOOTSTRAP_PASSWORD"

func main() {
	email := flag.String("email", "", "Email of the super admin account")
	name := flag.String("name", "", "Display name (defaults to the email's local part)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("app", constants.AppName+"-bootstrap"))

	if err := run(log, *email, *name, os.Getenv(passwordEnv)); err != nil {
		log.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, email, name, password string) error {
	validator := &validate.Validator{}
	validator.Required(identity.FieldEmail, email).
		Email(identity.FieldEmail, email).
		Required(identity.FieldPassword, password).
		MinLen(identity.FieldPassword, password, identity.MinPasswordLength).
		MaxLen(identity.FieldDisplayName, name, identity.MaxDisplayNameLength)
	if err := validator.Err(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.StoreBackend != config.StorePostgres {
		return fmt.Errorf("bootstrap requires STORE_BACKEND=%s", config.StorePostgres)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	return bootstrap(ctx, docstore.NewPostgresStore(pool), log, email, name, password)
}

// bootstrap registers the account and promotes it. The promotion re-checks that
// no super admin exists, so two concurrent runs cannot both succeed.
func bootstrap(ctx context.Context, store docstore.Store, log *slog.Logger, email, name, password string) error {
	existing, err := users.NewProfileRepository(store).CountByRole(ctx, authz.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("%d super admin account(s) already exist", existing)
	}

	accounts := identity.NewAccountRepository(store)
	access := authz.NewService(store, log, authz.WithDirectory(accounts))
	identityService := identity.NewService(identity.Dependencies{
		Accounts: accounts,
		Logger:   log,
	})

	account, err := identityService.Register(ctx, identity.RegisterInput{
		Email:       email,
		Password:    password,
		DisplayName: name,
	})
	if err != nil {
		return err
	}

	principal, err := access.BootstrapSuperAdmin(ctx, account.ID)
	if err != nil {
		return err
	}

	log.Info("super_admin_created",
		slog.String("user_id", principal.ID),
		slog.String("email", principal.Email),
	)
	return nil
}
