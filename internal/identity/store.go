// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Account Repository

// AccountRepository persists credentials in the 'accounts' collection and the
// matching profile in 'users'. The profile is written without a role, so a new
// principal resolves to the default role until a super admin grants one.
type AccountRepository struct {
	store docstore.Store
}

// NewAccountRepository wraps a document store.
func NewAccountRepository(store docstore.Store) *AccountRepository {
	return &AccountRepository{store: store}
}

/*
Create writes the credential and profile documents for a new account.

Both documents commit together when the store supports transactions. Otherwise
the credential document is removed again if the profile write fails.

Parameters:
  - context: context.Context
  - account: *Account (ID, Email and PasswordHash must be set)

Returns:
  - error: CONFLICT when the email is taken, STORE_UNAVAILABLE otherwise
*/
func (repository *AccountRepository) Create(ctx context.Context, account *Account) error {
	credential := schema.UserAccount
	profile := schema.UserProfile
	now := docstore.FormatTime(account.CreatedAt)

	write := func(ctx context.Context, store docstore.Store) error {
		_, err := store.Create(ctx, credential.Collection, account.Email, docstore.Fields{
			credential.UserID:       account.ID,
			credential.Email:        account.Email,
			credential.PasswordHash: account.PasswordHash,
			credential.CreatedAt:    now,
			credential.UpdatedAt:    now,
		})
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return apperr.Conflict("Email is already registered")
		}
		if err != nil {
			return fmt.Errorf("account_create_failed: %w", err)
		}

		_, err = store.Create(ctx, profile.Collection, account.ID, docstore.Fields{
			profile.Email:       account.Email,
			profile.DisplayName: account.DisplayName,
			profile.IsActive:    true,
			profile.CreatedAt:   now,
			profile.UpdatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("account_profile_create_failed: %w", err)
		}
		return nil
	}

	if transactor, ok := repository.store.(docstore.Transactor); ok {
		err := transactor.RunInTransaction(ctx, write)
		return dberr.Wrap(err, "Account")
	}

	if err := write(ctx, repository.store); err != nil {
		if !apperr.HasCode(err, apperr.CodeConflict) {
			_ = repository.store.Delete(ctx, credential.Collection, account.Email)
		}
		return dberr.Wrap(err, "Account")
	}
	return nil
}

// FindByEmail returns the account registered under email, or NOT_FOUND.
func (repository *AccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	document, err := repository.store.Get(ctx, schema.UserAccount.Collection, NormalizeEmail(email))
	if err != nil {
		return nil, dberr.Wrap(err, "Account")
	}
	return repository.withProfile(ctx, document)
}

// FindByID returns the account of principal id, or NOT_FOUND.
func (repository *AccountRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	profile, err := repository.store.Get(ctx, schema.UserProfile.Collection, id)
	if err != nil {
		return nil, dberr.Wrap(err, "Account")
	}

	document, err := repository.store.Get(ctx, schema.UserAccount.Collection, profile.String(schema.UserProfile.Email))
	if err != nil {
		return nil, dberr.Wrap(err, "Account")
	}
	if document.String(schema.UserAccount.UserID) != id {
		return nil, apperr.NotFound("Account")
	}

	account := accountFromDocument(document)
	applyProfile(account, profile)
	return account, nil
}

// UpdatePassword replaces the stored hash of the account keyed by email.
func (repository *AccountRepository) UpdatePassword(ctx context.Context, email, passwordHash string, at time.Time) error {
	credential := schema.UserAccount
	_, err := repository.store.Update(ctx, credential.Collection, NormalizeEmail(email), docstore.Fields{
		credential.PasswordHash: passwordHash,
		credential.UpdatedAt:    docstore.FormatTime(at),
	})
	return dberr.Wrap(err, "Account")
}

// RecordLogin stamps the profile's lastLoginAt. A missing profile is ignored.
func (repository *AccountRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	_, err := repository.store.Update(ctx, schema.UserProfile.Collection, id, docstore.Fields{
		schema.UserProfile.LastLoginAt: docstore.FormatTime(at),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return dberr.Wrap(err, "User profile")
}

// PrincipalExists implements authz.Directory. Authz asks when a grant targets
// a principal without a profile, so the credential collection is the source.
func (repository *AccountRepository) PrincipalExists(ctx context.Context, principalID string) (bool, error) {
	query := docstore.Query{}.Where(schema.UserAccount.UserID, docstore.OpEqual, principalID).Limit(1)
	_, err := docstore.First(repository.store.Query(ctx, schema.UserAccount.Collection, query))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dberr.Wrap(err, "Account")
	}
	return true, nil
}

func (repository *AccountRepository) withProfile(ctx context.Context, document *docstore.Document) (*Account, error) {
	account := accountFromDocument(document)

	profile, err := repository.store.Get(ctx, schema.UserProfile.Collection, account.ID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
	case err != nil:
		return nil, dberr.Wrap(err, "User profile")
	default:
		applyProfile(account, profile)
	}
	return account, nil
}

// # Mappers

func accountFromDocument(document *docstore.Document) *Account {
	credential := schema.UserAccount
	account := &Account{
		ID:           document.String(credential.UserID),
		Email:        document.String(credential.Email),
		PasswordHash: document.String(credential.PasswordHash),
		IsActive:     true,
		CreatedAt:    document.CreatedAt,
	}
	if createdAt, ok := document.Time(credential.CreatedAt); ok {
		account.CreatedAt = createdAt
	}
	return account
}

func applyProfile(account *Account, profile *docstore.Document) {
	account.DisplayName = profile.String(schema.UserProfile.DisplayName)
	account.IsActive = profile.BoolOr(schema.UserProfile.IsActive, true)
}
