// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity implements accounts, sign-in sessions and session events.

It issues the short-lived access tokens that identify a principal and the
rotating refresh sessions behind them. It never decides what a principal may
do: roles are resolved by package authz from the profile document on every
check.

Architecture:

  - Service: Register, Login, Logout, Refresh and the password flows.
  - Repositories: credentials in the document store, sessions and reset tokens in Redis.
  - Broker: session events over Redis pub/sub, fanned out in-process.
  - Presence: an authz.IdentityProvider that follows one client session.
*/
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/metrics"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
	"github.com/taibuivan/dreamlog/pkg/uuid"
)

// # Contracts

// AccountStore persists credentials and the profile created with them.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	UpdatePassword(ctx context.Context, email, passwordHash string, at time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	Create(ctx context.Context, session *RefreshSession) error
	Consume(ctx context.Context, tokenHash string) (*RefreshSession, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error)
	Revoke(ctx context.Context, session *RefreshSession) error
	RevokeAll(ctx context.Context, userID string) ([]string, error)
	RevokeOthers(ctx context.Context, userID, keepID string) ([]string, error)
}

// ResetTokenStore persists password reset tokens.
type ResetTokenStore interface {
	Set(ctx context.Context, token, userID string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// TokenProvider signs access tokens.
type TokenProvider interface {
	GenerateAccessToken(identity sec.Identity, timeToLive time.Duration) (string, error)
}

// EventPublisher announces session changes.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// # Service

// Service implements the identity use cases.
type Service struct {
	accounts AccountStore
	sessions SessionStore
	resets   ResetTokenStore
	tokens   TokenProvider
	events   EventPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Dependencies groups the collaborators of [NewService].
type Dependencies struct {
	Accounts AccountStore
	Sessions SessionStore
	Resets   ResetTokenStore
	Tokens   TokenProvider
	Events   EventPublisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewService constructs a [Service].
func NewService(deps Dependencies) *Service {
	service := &Service{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		resets:   deps.Resets,
		tokens:   deps.Tokens,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if service.now == nil {
		service.now = time.Now
	}
	if service.logger == nil {
		service.logger = slog.Default()
	}
	return service
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

/*
Register hashes the password and creates the account and its profile.

The profile carries no role, so the new principal is a plain user.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Account: Created account
  - error: CONFLICT if the email is registered, or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*Account, error) {
	email := NormalizeEmail(input.Email)

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("identity_hash_failed: %w", err)
	}

	account := &Account{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayNameFor(input.DisplayName, email),
		PasswordHash: hashedPassword,
		IsActive:     true,
		CreatedAt:    service.now().UTC(),
	}

	if err := service.accounts.Create(context, account); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "account_registered", slog.String("user_id", account.ID))
	return account, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	SessionID             string
	Account               *Account
}

/*
Login verifies credentials and opens a refresh session.

Unknown emails and wrong passwords produce the same error to prevent account
enumeration. A deactivated account cannot sign in.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: UNAUTHENTICATED, FORBIDDEN or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	session, err := service.login(context, input)
	service.metrics.ObserveLogin(err)
	return session, err
}

func (service *Service) login(ctx context.Context, input LoginInput) (*LoginSession, error) {
	account, err := service.accounts.FindByEmail(ctx, input.Email)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}
	if err != nil {
		return nil, err
	}

	if !sec.CheckPasswordHash(input.Password, account.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}
	if !account.IsActive {
		return nil, apperr.Forbidden("Account deactivated")
	}

	refresh := &RefreshSession{
		ID:        uuid.New(),
		UserID:    account.ID,
		UserAgent: input.UserAgent,
		IPAddress: input.IPAddress,
	}
	session, err := service.issue(ctx, account, refresh)
	if err != nil {
		return nil, err
	}

	if err := service.accounts.RecordLogin(ctx, account.ID, service.now().UTC()); err != nil {
		service.logger.WarnContext(ctx, "login_timestamp_failed", slog.Any("error", err))
	}

	service.publish(ctx, Event{Kind: EventSignedIn, PrincipalID: account.ID, SessionID: refresh.ID})
	service.logger.InfoContext(ctx, "user_signed_in",
		slog.String("user_id", account.ID),
		slog.String("session_id", refresh.ID),
	)
	return session, nil
}

/*
Logout revokes the session behind refreshToken.

It is idempotent: an unknown or expired token is not an error.
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {
	session, err := service.sessions.Consume(context, sec.HashToken(refreshToken))
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity_logout_failed: %w", err)
	}

	if err := service.sessions.Revoke(context, session); err != nil {
		return fmt.Errorf("identity_logout_failed: %w", err)
	}

	service.publish(context, Event{Kind: EventSignedOut, PrincipalID: session.UserID, SessionID: session.ID})
	service.logger.InfoContext(context, "user_signed_out",
		slog.String("user_id", session.UserID),
		slog.String("session_id", session.ID),
	)
	return nil
}

// # Session Management

/*
Refresh implements refresh token rotation.

The presented token is consumed atomically, so a replayed token fails. The new
token keeps the session ID, which lets presence streams follow the device
across rotations.

Parameters:
  - context: context.Context
  - refreshToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: New session credentials
  - error: UNAUTHENTICATED when the token is invalid or the account is gone
*/
func (service *Service) Refresh(context context.Context, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {
	previous, err := service.sessions.Consume(context, sec.HashToken(refreshToken))
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("identity_refresh_failed: %w", err)
	}

	account, err := service.accounts.FindByID(context, previous.UserID)
	if err != nil || !account.IsActive {
		_ = service.sessions.Revoke(context, previous)
		service.publish(context, Event{Kind: EventSignedOut, PrincipalID: previous.UserID, SessionID: previous.ID})
		return nil, apperr.Unauthorized("User not found or deactivated")
	}

	rotated := &RefreshSession{
		ID:        previous.ID,
		UserID:    previous.UserID,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		CreatedAt: previous.CreatedAt,
	}
	session, err := service.issue(context, account, rotated)
	if err != nil {
		return nil, err
	}

	service.publish(context, Event{Kind: EventRefreshed, PrincipalID: account.ID, SessionID: rotated.ID})
	return session, nil
}

// issue signs an access token and stores a fresh refresh token for session.
func (service *Service) issue(ctx context.Context, account *Account, session *RefreshSession) (*LoginSession, error) {
	accessToken, err := service.tokens.GenerateAccessToken(sec.Identity{
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		SessionID:   session.ID,
	}, constants.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("identity_token_generation_failed: %w", err)
	}

	refreshToken, err := sec.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("identity_refresh_token_failed: %w", err)
	}

	now := service.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.TokenHash = sec.HashToken(refreshToken)
	session.ExpiresAt = now.Add(constants.RefreshTokenTTL)

	if err := service.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("identity_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: session.ExpiresAt,
		SessionID:             session.ID,
		Account:               account,
	}, nil
}

// # Password Recovery

/*
RequestPasswordReset creates a single-use reset token for email.

An unknown email returns an empty token and no error, so callers cannot probe
which addresses are registered.
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) (string, error) {
	account, err := service.accounts.FindByEmail(context, email)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	token, err := sec.GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("identity_generate_reset_token_failed: %w", err)
	}

	if err := service.resets.Set(context, token, account.ID, constants.ResetTokenTTL); err != nil {
		return "", fmt.Errorf("identity_save_reset_token_failed: %w", err)
	}

	service.logger.InfoContext(context, "password_reset_requested", slog.String("user_id", account.ID))
	return token, nil
}

/*
ResetPassword completes the forgot-password flow.

Every session of the account is revoked afterwards.
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {
	userID, err := service.resets.Get(context, token)
	if err != nil {
		return err
	}

	account, err := service.accounts.FindByID(context, userID)
	if err != nil {
		return err
	}

	if err := service.setPassword(context, account, newPassword); err != nil {
		return err
	}

	_ = service.resets.Delete(context, token)

	if _, err := service.sessions.RevokeAll(context, userID); err != nil {
		service.logger.WarnContext(context, "reset_session_revoke_failed", slog.Any("error", err))
	}
	service.publish(context, Event{Kind: EventSignedOut, PrincipalID: userID})
	return nil
}

/*
ChangePassword updates the password of an authenticated user.

Every session except the one behind currentRefreshToken is revoked.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string
  - currentRefreshToken: string

Returns:
  - error: UNAUTHENTICATED when the current password is wrong
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword, currentRefreshToken string) error {
	account, err := service.accounts.FindByID(context, userID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(currentPassword, account.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	if err := service.setPassword(context, account, newPassword); err != nil {
		return err
	}

	keep := ""
	if session, err := service.sessions.FindByTokenHash(context, sec.HashToken(currentRefreshToken)); err == nil && session.UserID == userID {
		keep = session.ID
	}

	revoked, err := service.sessions.RevokeOthers(context, userID, keep)
	if err != nil {
		service.logger.WarnContext(context, "change_password_revoke_failed", slog.Any("error", err))
	}
	for _, sessionID := range revoked {
		service.publish(context, Event{Kind: EventSignedOut, PrincipalID: userID, SessionID: sessionID})
	}
	return nil
}

func (service *Service) setPassword(ctx context.Context, account *Account, password string) error {
	hashedPassword, err := sec.HashPassword(password)
	if err != nil {
		return fmt.Errorf("identity_password_hash_failed: %w", err)
	}
	if err := service.accounts.UpdatePassword(ctx, account.Email, hashedPassword, service.now().UTC()); err != nil {
		return err
	}
	service.logger.InfoContext(ctx, "password_changed", slog.String("user_id", account.ID))
	return nil
}

// # Events

// SignOutEverywhere revokes every session of userID, for example after the
// account was deactivated.
func (service *Service) SignOutEverywhere(context context.Context, userID string) error {
	if _, err := service.sessions.RevokeAll(context, userID); err != nil {
		return fmt.Errorf("identity_sign_out_everywhere_failed: %w", err)
	}
	service.publish(context, Event{Kind: EventSignedOut, PrincipalID: userID})
	return nil
}

func (service *Service) publish(ctx context.Context, event Event) {
	if service.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = service.now().UTC()
	}
	if err := service.events.Publish(ctx, event); err != nil {
		service.logger.WarnContext(ctx, "session_event_publish_failed",
			slog.String("kind", string(event.Kind)),
			slog.Any("error", err),
		)
	}
}
