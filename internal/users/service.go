// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package users

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/pkg/slice"
)

// # Collaborators

// SessionTerminator ends every session of a principal.
type SessionTerminator interface {
	SignOutEverywhere(ctx context.Context, userID string) error
}

// # Service Layer

// Service orchestrates user administration.
type Service struct {
	profiles *ProfileRepository
	access   *authz.Service
	sessions SessionTerminator
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a [Service]. sessions may be nil, in which case
// deactivated users keep their refresh sessions until they expire; every
// request is still rejected by authz.
func NewService(profiles *ProfileRepository, access *authz.Service, sessions SessionTerminator, logger *slog.Logger) *Service {
	return &Service{
		profiles: profiles,
		access:   access,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// # Queries

// Page is one page of a user listing.
type Page struct {
	Users []*User
	Total int
}

/*
List returns one page of users matching filter.

Parameters:
  - context: context.Context
  - actor: *authz.Principal
  - filter: Filter
  - offset, limit: int

Returns:
  - Page
  - error: UNAUTHENTICATED, FORBIDDEN or store failures
*/
func (service *Service) List(context context.Context, actor *authz.Principal, filter Filter, offset, limit int) (Page, error) {
	if err := service.access.Authorize(actor, authz.CanManageUsers); err != nil {
		return Page{}, err
	}

	matched, err := service.profiles.List(context, filter)
	if err != nil {
		return Page{}, err
	}

	page := Page{Total: len(matched)}
	if offset < len(matched) {
		end := min(offset+limit, len(matched))
		page.Users = matched[offset:end]
	}
	return page, nil
}

// Get returns a single user. Principals may always read themselves.
func (service *Service) Get(context context.Context, actor *authz.Principal, id string) (*User, error) {
	if actor == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	if actor.ID != id {
		if err := service.access.Authorize(actor, authz.CanManageUsers); err != nil {
			return nil, err
		}
	}
	return service.profiles.FindByID(context, id)
}

// # Activation

/*
SetActive deactivates or reactivates a user.

Deactivation signs the user out everywhere. Authorization state is re-read on
every request, so the user loses access at once even if the sign-out fails.

Returns:
  - *User: The updated user
  - error: FORBIDDEN for self-targeting or insufficient rank, NOT_FOUND, CONFLICT
*/
func (service *Service) SetActive(context context.Context, actor *authz.Principal, id string, active bool) (*User, error) {
	if err := service.access.Authorize(actor, authz.CanManageUsers); err != nil {
		return nil, err
	}
	if actor.ID == id {
		return nil, apperr.Forbidden("You cannot change the status of your own account")
	}

	target, err := service.profiles.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if target.Role == authz.RoleSuperAdmin && actor.Role != authz.RoleSuperAdmin {
		return nil, apperr.Forbidden("Only a super admin may change the status of a super admin")
	}
	if target.IsActive == active {
		return target, nil
	}

	updated, err := service.profiles.Update(context, id, ProfileUpdate{
		IsActive:  &active,
		UpdatedBy: actor.ID,
		UpdatedAt: service.now().UTC(),
		Version:   target.Version,
	})
	if err != nil {
		return nil, err
	}

	event := "user_reactivated"
	if !active {
		event = "user_deactivated"
		if service.sessions != nil {
			if err := service.sessions.SignOutEverywhere(context, id); err != nil {
				service.logger.WarnContext(context, "deactivation_sign_out_failed",
					slog.String("user_id", id),
					slog.Any("error", err),
				)
			}
		}
	}
	service.logger.InfoContext(context, event,
		slog.String("actor_id", actor.ID),
		slog.String("user_id", id),
	)
	return updated, nil
}

// # Profile

// UpdateDisplayName changes the caller's public name.
func (service *Service) UpdateDisplayName(context context.Context, principal *authz.Principal, displayName string) (*User, error) {
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	displayName = strings.TrimSpace(displayName)

	current, err := service.profiles.FindByID(context, principal.ID)
	if err != nil {
		return nil, err
	}

	return service.profiles.Update(context, principal.ID, ProfileUpdate{
		DisplayName: &displayName,
		UpdatedBy:   principal.ID,
		UpdatedAt:   service.now().UTC(),
		Version:     current.Version,
	})
}

// # Role Changes

// RoleChange is a super-admin role assignment request.
type RoleChange struct {
	Role            authz.Role
	Permissions     map[string]bool
	ExpectedVersion *int64
}

// GrantRole delegates to [authz.Service.GrantRole] and returns the updated user.
func (service *Service) GrantRole(context context.Context, actor *authz.Principal, id string, change RoleChange) (*User, error) {
	var options []authz.GrantOption
	if change.Permissions != nil {
		set, err := authz.PermissionSetFromFlags(change.Permissions)
		if err != nil {
			return nil, apperr.ValidationError("Unknown capability", apperr.FieldError{Field: "permissions", Message: err.Error()})
		}
		options = append(options, authz.WithPermissions(set))
	}
	if change.ExpectedVersion != nil {
		options = append(options, authz.WithExpectedVersion(*change.ExpectedVersion))
	}

	if _, err := service.access.GrantRole(context, actor, id, change.Role, options...); err != nil {
		return nil, err
	}
	return service.profiles.FindByID(context, id)
}

// Promote moves the user one step up the ladder.
func (service *Service) Promote(context context.Context, actor *authz.Principal, id string) (*User, error) {
	if _, err := service.access.PromoteUser(context, actor, id); err != nil {
		return nil, err
	}
	return service.profiles.FindByID(context, id)
}

// Demote moves the user one step down the ladder.
func (service *Service) Demote(context context.Context, actor *authz.Principal, id string) (*User, error) {
	if _, err := service.access.DemoteUser(context, actor, id); err != nil {
		return nil, err
	}
	return service.profiles.FindByID(context, id)
}

// # Summaries

// RoleCounts tallies users per role for the admin dashboard.
func (service *Service) RoleCounts(context context.Context, actor *authz.Principal) (map[authz.Role]int, error) {
	if err := service.access.Authorize(actor, authz.CanManageUsers); err != nil {
		return nil, err
	}
	all, err := service.profiles.List(context, Filter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[authz.Role]int, len(authz.Roles))
	for _, role := range authz.Roles {
		counts[role] = len(slice.Filter(all, func(user *User) bool { return user.Role == role }))
	}
	return counts, nil
}
