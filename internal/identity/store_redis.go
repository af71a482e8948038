// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
)

// # Session Repository

/*
RedisSessionRepository stores refresh sessions.

Key layout:
  - auth:session:{tokenHash}   JSON session, expires with the refresh token
  - auth:user_sessions:{userID} hash of sessionID -> tokenHash
*/
type RedisSessionRepository struct {
	client redis.UniversalClient
}

// NewSessionRepository creates a Redis-backed session repository.
func NewSessionRepository(client redis.UniversalClient) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func sessionKey(tokenHash string) string { return constants.RedisPrefixSession + tokenHash }

func userIndexKey(userID string) string { return constants.RedisPrefixUserIndex + userID }

// storedSession is the Redis representation of a [RefreshSession].
type storedSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"tokenHash"`
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

/*
Create persists session and indexes it under its user.

Parameters:
  - context: context.Context
  - session: *RefreshSession

Returns:
  - error: Storage failures
*/
func (repository *RedisSessionRepository) Create(context context.Context, session *RefreshSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("redis_session_already_expired")
	}

	payload, err := json.Marshal(storedSession(*session))
	if err != nil {
		return fmt.Errorf("redis_session_encode_failed: %w", err)
	}

	index := userIndexKey(session.UserID)
	_, err = repository.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.Set(context, sessionKey(session.TokenHash), payload, ttl)
		pipe.HSet(context, index, session.ID, session.TokenHash)
		pipe.Expire(context, index, constants.RefreshTokenTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_session_create_failed: %w", err)
	}
	return nil
}

/*
Consume atomically removes and returns the session of tokenHash.

Two concurrent refreshes with the same token cannot both succeed: only one
caller observes the session.

Returns:
  - *RefreshSession: The consumed session
  - error: NOT_FOUND when the token is unknown, expired or already used
*/
func (repository *RedisSessionRepository) Consume(context context.Context, tokenHash string) (*RefreshSession, error) {
	raw, err := repository.client.GetDel(context, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NotFound("Session")
	}
	if err != nil {
		return nil, fmt.Errorf("redis_session_consume_failed: %w", err)
	}
	return decodeSession(raw)
}

// FindByTokenHash returns the session of tokenHash without consuming it.
func (repository *RedisSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*RefreshSession, error) {
	raw, err := repository.client.Get(context, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NotFound("Session")
	}
	if err != nil {
		return nil, fmt.Errorf("redis_session_get_failed: %w", err)
	}
	return decodeSession(raw)
}

// Active reports whether the user's session is still signed in.
func (repository *RedisSessionRepository) Active(context context.Context, userID, sessionID string) (bool, error) {
	tokenHash, err := repository.client.HGet(context, userIndexKey(userID), sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis_session_index_failed: %w", err)
	}

	exists, err := repository.client.Exists(context, sessionKey(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("redis_session_exists_failed: %w", err)
	}
	return exists == 1, nil
}

// Revoke removes a single session. Revoking a missing session is not an error.
func (repository *RedisSessionRepository) Revoke(context context.Context, session *RefreshSession) error {
	_, err := repository.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.Del(context, sessionKey(session.TokenHash))
		pipe.HDel(context, userIndexKey(session.UserID), session.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_session_revoke_failed: %w", err)
	}
	return nil
}

// RevokeAll signs the user out everywhere and returns the revoked session IDs.
func (repository *RedisSessionRepository) RevokeAll(context context.Context, userID string) ([]string, error) {
	return repository.revokeWhere(context, userID, func(string) bool { return true })
}

// RevokeOthers signs the user out of every session except keepID.
func (repository *RedisSessionRepository) RevokeOthers(context context.Context, userID, keepID string) ([]string, error) {
	return repository.revokeWhere(context, userID, func(sessionID string) bool { return sessionID != keepID })
}

func (repository *RedisSessionRepository) revokeWhere(ctx context.Context, userID string, match func(sessionID string) bool) ([]string, error) {
	index := userIndexKey(userID)
	entries, err := repository.client.HGetAll(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("redis_session_list_failed: %w", err)
	}

	var revoked []string
	for sessionID := range entries {
		if match(sessionID) {
			revoked = append(revoked, sessionID)
		}
	}
	if len(revoked) == 0 {
		return nil, nil
	}

	_, err = repository.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sessionID := range revoked {
			pipe.Del(ctx, sessionKey(entries[sessionID]))
		}
		pipe.HDel(ctx, index, revoked...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis_session_revoke_all_failed: %w", err)
	}
	return revoked, nil
}

func decodeSession(raw []byte) (*RefreshSession, error) {
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("redis_session_decode_failed: %w", err)
	}
	session := RefreshSession(stored)
	return &session, nil
}

// # Reset Token Repository

// RedisResetTokenRepository stores password reset tokens. Only the token
// digest is used as key.
type RedisResetTokenRepository struct {
	client redis.UniversalClient
}

// NewResetTokenRepository creates a Redis-backed reset token repository.
func NewResetTokenRepository(client redis.UniversalClient) *RedisResetTokenRepository {
	return &RedisResetTokenRepository{client: client}
}

func resetKey(token string) string { return constants.RedisPrefixResetToken + sec.HashToken(token) }

/*
Set stores a reset token with its associated userID and TTL.

Parameters:
  - context: context.Context
  - token: string
  - userID: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisResetTokenRepository) Set(context context.Context, token, userID string, ttl time.Duration) error {
	if err := repository.client.Set(context, resetKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_set_failed: %w", err)
	}
	return nil
}

// Get retrieves the userID for token, or NOT_FOUND when absent or expired.
func (repository *RedisResetTokenRepository) Get(context context.Context, token string) (string, error) {
	userID, err := repository.client.Get(context, resetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperr.NotFound("Reset token")
	}
	if err != nil {
		return "", fmt.Errorf("redis_reset_token_get_failed: %w", err)
	}
	return userID, nil
}

// Delete removes the token.
func (repository *RedisResetTokenRepository) Delete(context context.Context, token string) error {
	if err := repository.client.Del(context, resetKey(token)).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_delete_failed: %w", err)
	}
	return nil
}
