// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package users

import (
	"context"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Profile Repository

// ProfileRepository reads and updates the non-role fields of 'users' documents.
type ProfileRepository struct {
	store docstore.Store
}

// NewProfileRepository wraps a document store.
func NewProfileRepository(store docstore.Store) *ProfileRepository {
	return &ProfileRepository{store: store}
}

/*
List returns every profile matching filter, newest first.

Role and text filters are evaluated in process: profiles without a stored role
belong to the default role, which a store equality filter cannot express.

Parameters:
  - context: context.Context
  - filter: Filter

Returns:
  - []*User: Matching users
  - error: UNKNOWN_ROLE for corrupted profiles or STORE_UNAVAILABLE
*/
func (repository *ProfileRepository) List(context context.Context, filter Filter) ([]*User, error) {
	query := docstore.Query{}.OrderBy(schema.UserProfile.CreatedAt, true)

	var users []*User
	for document, err := range repository.store.Query(context, schema.UserProfile.Collection, query) {
		if err != nil {
			return nil, dberr.Wrap(err, "User profile")
		}
		user, err := userFromDocument(document)
		if err != nil {
			return nil, err
		}
		if filter.matches(user) {
			users = append(users, user)
		}
	}
	return users, nil
}

// FindByID returns the profile of id, or NOT_FOUND.
func (repository *ProfileRepository) FindByID(context context.Context, id string) (*User, error) {
	document, err := repository.store.Get(context, schema.UserProfile.Collection, id)
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}
	return userFromDocument(document)
}

// ProfileUpdate is a partial profile write guarded by the version it was read at.
type ProfileUpdate struct {
	IsActive    *bool
	DisplayName *string
	UpdatedBy   string
	UpdatedAt   time.Time
	Version     int64
}

// Update applies update. A concurrent change yields CONFLICT.
func (repository *ProfileRepository) Update(context context.Context, id string, update ProfileUpdate) (*User, error) {
	profile := schema.UserProfile
	fields := docstore.Fields{
		profile.UpdatedAt: docstore.FormatTime(update.UpdatedAt),
		profile.UpdatedBy: update.UpdatedBy,
	}
	if update.IsActive != nil {
		fields[profile.IsActive] = *update.IsActive
	}
	if update.DisplayName != nil {
		fields[profile.DisplayName] = *update.DisplayName
	}

	document, err := repository.store.Update(context, profile.Collection, id, fields, docstore.IfVersion(update.Version))
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}
	return userFromDocument(document)
}

// CountByRole counts profiles holding role. Used by the bootstrap command.
func (repository *ProfileRepository) CountByRole(context context.Context, role authz.Role) (int, error) {
	query := docstore.Query{}.Where(schema.UserProfile.Role, docstore.OpEqual, string(role))
	count, err := repository.store.Count(context, schema.UserProfile.Collection, query)
	if err != nil {
		return 0, dberr.Wrap(err, "User profile")
	}
	return count, nil
}
