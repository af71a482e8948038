// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package users implements user administration on top of package authz.

Administrators list and inspect profiles and deactivate or reactivate
accounts. Role changes are delegated to [authz.Service], which remains the only
code path that writes roles.

# Rules

  - Listing, inspecting and (de)activating require canManageUsers.
  - A super admin account can only be (de)activated by a super admin.
  - Nobody can (de)activate their own account.
*/
package users

import (
	"strings"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Domain Entities

// User is the administrative view of a profile document.
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName"`
	Role        authz.Role      `json:"role"`
	Permissions map[string]bool `json:"permissions"`
	IsActive    bool            `json:"isActive"`
	LastLoginAt *time.Time      `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	UpdatedBy   string          `json:"updatedBy,omitempty"`
	Version     int64           `json:"version"`
}

// OwnerID implements authz.Resource.
func (user *User) OwnerID() string { return user.ID }

// Filter narrows a user listing.
type Filter struct {
	Role   authz.Role
	Active *bool
	Search string
}

func (filter Filter) matches(user *User) bool {
	if filter.Role != "" && user.Role != filter.Role {
		return false
	}
	if filter.Active != nil && user.IsActive != *filter.Active {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		return strings.Contains(strings.ToLower(user.Email), term) ||
			strings.Contains(strings.ToLower(user.DisplayName), term)
	}
	return true
}

// # Mappers

// userFromDocument decodes a profile. The role is parsed strictly, so a
// corrupted profile surfaces as UNKNOWN_ROLE instead of a wrong listing.
func userFromDocument(document *docstore.Document) (*User, error) {
	profile := schema.UserProfile

	role := authz.RoleUser
	if raw := document.String(profile.Role); raw != "" {
		parsed, err := authz.ParseRole(raw)
		if err != nil {
			return nil, err
		}
		role = parsed
	}

	permissions := document.BoolMap(profile.Permissions)
	if permissions == nil {
		defaults, _ := authz.PermissionsFor(role)
		permissions = defaults.Flags()
	}

	user := &User{
		ID:          document.ID,
		Email:       document.String(profile.Email),
		DisplayName: document.String(profile.DisplayName),
		Role:        role,
		Permissions: permissions,
		IsActive:    document.BoolOr(profile.IsActive, true),
		CreatedAt:   document.CreatedAt,
		UpdatedAt:   document.UpdatedAt,
		UpdatedBy:   document.String(profile.UpdatedBy),
		Version:     document.Version,
	}
	if lastLogin, ok := document.Time(profile.LastLoginAt); ok {
		user.LastLoginAt = &lastLogin
	}
	return user, nil
}
