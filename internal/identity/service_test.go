// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/identity"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
)

func TestMain(m *testing.M) {
	sec.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// # Harness

const password = "correct horse battery"

type harness struct {
	redis    *miniredis.Miniredis
	store    *docstore.MemoryStore
	accounts *identity.AccountRepository
	sessions *identity.RedisSessionRepository
	resets   *identity.RedisResetTokenRepository
	broker   *identity.Broker
	tokens   *sec.TokenService
	service  *identity.Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		redis:    server,
		store:    docstore.NewMemoryStore(),
		sessions: identity.NewSessionRepository(client),
		resets:   identity.NewResetTokenRepository(client),
		broker:   identity.NewBroker(client, nil, discardLogger()),
		tokens:   sec.NewTokenServiceFromKeys(key, &key.PublicKey, constants.AuthIssuer),
	}
	h.accounts = identity.NewAccountRepository(h.store)
	require.NoError(t, h.broker.Start(ctx))

	h.service = identity.NewService(identity.Dependencies{
		Accounts: h.accounts,
		Sessions: h.sessions,
		Resets:   h.resets,
		Tokens:   h.tokens,
		Events:   h.broker,
		Logger:   discardLogger(),
	})
	return h
}

func (h *harness) register(t *testing.T, email string) *identity.Account {
	t.Helper()
	account, err := h.service.Register(context.Background(), identity.RegisterInput{Email: email, Password: password})
	require.NoError(t, err)
	return account
}

func (h *harness) login(t *testing.T, email, pass string) (*identity.LoginSession, error) {
	t.Helper()
	return h.service.Login(context.Background(), identity.LoginInput{Email: email, Password: pass, UserAgent: "test"})
}

// # Registration

/*
TestService_Register creates a credential and a role-less profile.
*/
func TestService_Register(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account := h.register(t, "  Writer@Dreamlog.App ")
	assert.Equal(t, "writer@dreamlog.app", account.Email)
	assert.Equal(t, "writer", account.DisplayName)
	assert.NotEqual(t, password, account.PasswordHash)

	profile, err := h.store.Get(ctx, schema.UserProfile.Collection, account.ID)
	require.NoError(t, err)
	assert.False(t, profile.Has(schema.UserProfile.Role))
	assert.True(t, profile.Bool(schema.UserProfile.IsActive))

	role, err := authz.NewService(h.store, discardLogger()).LoadRole(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, authz.RoleUser, role)

	_, err = h.service.Register(ctx, identity.RegisterInput{Email: "WRITER@dreamlog.app", Password: password})
	assert.True(t, apperr.HasCode(err, apperr.CodeConflict))

	exists, err := h.accounts.PrincipalExists(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = h.accounts.PrincipalExists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, exists)

	// Grants may recreate a lost profile for a known account.
	require.NoError(t, h.store.Delete(ctx, schema.UserProfile.Collection, account.ID))
	exists, err = h.accounts.PrincipalExists(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

// # Login

/*
TestService_Login issues a token bound to a stored session.
*/
func TestService_Login(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, "writer@dreamlog.app")

	t.Run("wrong_password", func(t *testing.T) {
		_, err := h.login(t, "writer@dreamlog.app", "nope-nope-nope")
		assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
	})

	t.Run("unknown_email", func(t *testing.T) {
		_, err := h.login(t, "ghost@dreamlog.app", password)
		assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
	})

	t.Run("success", func(t *testing.T) {
		session, err := h.login(t, "Writer@dreamlog.app", password)
		require.NoError(t, err)
		assert.NotEmpty(t, session.RefreshToken)

		claims, err := h.tokens.VerifyToken(session.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, account.ID, claims.UserID)
		assert.Equal(t, session.SessionID, claims.SessionID)

		active, err := h.sessions.Active(context.Background(), account.ID, session.SessionID)
		require.NoError(t, err)
		assert.True(t, active)

		profile, err := h.store.Get(context.Background(), schema.UserProfile.Collection, account.ID)
		require.NoError(t, err)
		assert.True(t, profile.Has(schema.UserProfile.LastLoginAt))
	})

	t.Run("deactivated", func(t *testing.T) {
		_, err := h.store.Update(context.Background(), schema.UserProfile.Collection, account.ID, docstore.Fields{
			schema.UserProfile.IsActive: false,
		})
		require.NoError(t, err)

		_, err = h.login(t, "writer@dreamlog.app", password)
		assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
	})
}

// # Sessions

/*
TestService_RefreshRotation keeps the session ID and rejects replays.
*/
func TestService_RefreshRotation(t *testing.T) {
	h := newHarness(t)
	h.register(t, "writer@dreamlog.app")
	ctx := context.Background()

	first, err := h.login(t, "writer@dreamlog.app", password)
	require.NoError(t, err)

	second, err := h.service.Refresh(ctx, first.RefreshToken, "test", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.SessionID, second.SessionID)

	_, err = h.service.Refresh(ctx, first.RefreshToken, "test", "127.0.0.1")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))

	_, err = h.service.Refresh(ctx, "garbage", "test", "127.0.0.1")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
}

/*
TestService_RefreshDeactivated ends the session of a deactivated account.
*/
func TestService_RefreshDeactivated(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, "writer@dreamlog.app")
	ctx := context.Background()

	session, err := h.login(t, "writer@dreamlog.app", password)
	require.NoError(t, err)

	_, err = h.store.Update(ctx, schema.UserProfile.Collection, account.ID, docstore.Fields{schema.UserProfile.IsActive: false})
	require.NoError(t, err)

	_, err = h.service.Refresh(ctx, session.RefreshToken, "test", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))

	active, err := h.sessions.Active(ctx, account.ID, session.SessionID)
	require.NoError(t, err)
	assert.False(t, active)
}

/*
TestService_Logout is idempotent.
*/
func TestService_Logout(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, "writer@dreamlog.app")
	ctx := context.Background()

	session, err := h.login(t, "writer@dreamlog.app", password)
	require.NoError(t, err)

	require.NoError(t, h.service.Logout(ctx, session.RefreshToken))
	require.NoError(t, h.service.Logout(ctx, session.RefreshToken))

	active, err := h.sessions.Active(ctx, account.ID, session.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = h.service.Refresh(ctx, session.RefreshToken, "test", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
}

// # Passwords

/*
TestService_PasswordReset consumes the token and signs out every session.
*/
func TestService_PasswordReset(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, "writer@dreamlog.app")
	ctx := context.Background()

	token, err := h.service.RequestPasswordReset(ctx, "ghost@dreamlog.app")
	require.NoError(t, err)
	assert.Empty(t, token)

	session, err := h.login(t, "writer@dreamlog.app", password)
	require.NoError(t, err)

	token, err = h.service.RequestPasswordReset(ctx, "writer@dreamlog.app")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, constants.ResetTokenTTL, h.redis.TTL(constants.RedisPrefixResetToken+sec.HashToken(token)))

	require.NoError(t, h.service.ResetPassword(ctx, token, "a brand new secret"))

	_, err = h.login(t, "writer@dreamlog.app", password)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
	_, err = h.login(t, "writer@dreamlog.app", "a brand new secret")
	assert.NoError(t, err)

	active, err := h.sessions.Active(ctx, account.ID, session.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	err = h.service.ResetPassword(ctx, token, "another secret!")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	token, err = h.service.RequestPasswordReset(ctx, "writer@dreamlog.app")
	require.NoError(t, err)
	h.redis.FastForward(constants.ResetTokenTTL + time.Second)
	err = h.service.ResetPassword(ctx, token, "too late secret")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestService_ChangePassword keeps the current session and revokes the others.
*/
func TestService_ChangePassword(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, "writer@dreamlog.app")
	ctx := context.Background()

	laptop, err := h.login(t, "writer@dreamlog.app", password)
	require.NoError(t, err)
	phone, err := h.login(t, "writer@dreamlog.app", password)
	require.NoError(t, err)

	err = h.service.ChangePassword(ctx, account.ID, "wrong-password", "next secret!", laptop.RefreshToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))

	require.NoError(t, h.service.ChangePassword(ctx, account.ID, password, "next secret!", laptop.RefreshToken))

	active, err := h.sessions.Active(ctx, account.ID, laptop.SessionID)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = h.sessions.Active(ctx, account.ID, phone.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = h.login(t, "writer@dreamlog.app", "next secret!")
	assert.NoError(t, err)
}
