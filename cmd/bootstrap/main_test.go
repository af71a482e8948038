// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
	"github.com/taibuivan/dreamlog/internal/users"
)

func TestMain(m *testing.M) {
	sec.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

/*
TestBootstrap creates one super admin and refuses a second run.
*/
func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, bootstrap(ctx, store, log, "owner@dreamlog.app", "Owner", "correct-horse"))

	count, err := users.NewProfileRepository(store).CountByRole(ctx, authz.RoleSuperAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = bootstrap(ctx, store, log, "second@dreamlog.app", "Second", "correct-horse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exist")
}

/*
TestRun_Validation rejects bad input before touching any store.
*/
func TestRun_Validation(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing_email", "", "correct-horse"},
		{"bad_email", "owner", "correct-horse"},
		{"short_password", "owner@dreamlog.app", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, run(log, tt.email, "", tt.password))
		})
	}
}
