// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"errors"
	"log/slog"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// Grant sources, used for logging and metrics.
const (
	sourceGrant     = "grant"
	sourcePromote   = "promote"
	sourceDemote    = "demote"
	sourcePetition  = "petition"
	sourceBootstrap = "bootstrap"
)

// # Grant Options

type grantOptions struct {
	permissions     *PermissionSet
	expectedVersion int64
	hasVersion      bool
	source          string
}

// GrantOption customizes a [Service.GrantRole] call.
type GrantOption func(*grantOptions)

// WithPermissions stores set instead of the role's default permission set.
func WithPermissions(set PermissionSet) GrantOption {
	return func(options *grantOptions) { options.permissions = &set }
}

// WithExpectedVersion makes the grant fail with CONFLICT unless the target
// profile is still at version, as read by the caller.
func WithExpectedVersion(version int64) GrantOption {
	return func(options *grantOptions) {
		options.expectedVersion = version
		options.hasVersion = true
	}
}

// # Role Mutations

/*
GrantRole sets the target principal's role. It is the only write path for roles.

Only a super_admin actor may grant. The actor's role is re-read from the store so
that a revoked super admin cannot act on a stale principal. The profile write
carries a version precondition; a concurrent change yields CONFLICT instead of a
silent last-writer-wins.

Parameters:
  - context: context.Context
  - actor: *Principal (the caller)
  - targetID: string
  - role: Role
  - options: ...GrantOption

Returns:
  - *Principal: The target after the grant
  - error: UNAUTHENTICATED, FORBIDDEN, NOT_FOUND, CONFLICT, STORE_UNAVAILABLE
*/
func (service *Service) GrantRole(context context.Context, actor *Principal, targetID string, role Role, options ...GrantOption) (*Principal, error) {
	settings := grantOptions{source: sourceGrant}
	for _, option := range options {
		option(&settings)
	}
	return service.grant(context, actor, targetID, role, settings)
}

// PromoteUser moves the target one step up user < contributor < editor < admin.
func (service *Service) PromoteUser(context context.Context, actor *Principal, targetID string) (*Principal, error) {
	return service.step(context, actor, targetID, sourcePromote, Role.Next)
}

// DemoteUser moves the target one step down the ladder.
// A super_admin can never be demoted this way.
func (service *Service) DemoteUser(context context.Context, actor *Principal, targetID string) (*Principal, error) {
	return service.step(context, actor, targetID, sourceDemote, Role.Previous)
}

func (service *Service) step(context context.Context, actor *Principal, targetID, source string, move func(Role) (Role, bool)) (*Principal, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}

	settings := grantOptions{source: source}
	current := RoleUser

	document, err := service.store.Get(context, schema.UserProfile.Collection, targetID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
	case err != nil:
		return nil, dberr.Wrap(err, "User profile")
	default:
		principal, err := principalFromDocument(document)
		if err != nil {
			return nil, err
		}
		current = principal.Role
		settings.expectedVersion = document.Version
		settings.hasVersion = true
	}

	if current == RoleSuperAdmin {
		return nil, apperr.InvalidTransition("A super admin cannot be promoted or demoted")
	}

	next, ok := move(current)
	if !ok {
		return nil, apperr.InvalidTransition("Role " + string(current) + " is at the end of the ladder")
	}

	return service.grant(context, actor, targetID, next, settings)
}

func (service *Service) grant(context context.Context, actor *Principal, targetID string, role Role, settings grantOptions) (*Principal, error) {
	actor, err := service.verifyActor(context, actor)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.ValidationError("Unknown role", apperr.FieldError{Field: "role", Message: "Must be one of the defined roles"})
	}
	if targetID == "" {
		return nil, apperr.ValidationError("Target principal is required")
	}
	// Super admins cannot lower their own role.
	if targetID == actor.ID && role != RoleSuperAdmin {
		return nil, apperr.Forbidden("A super admin cannot lower their own role")
	}

	target, err := service.applyGrant(context, service.store, actor.ID, targetID, role, settings)
	service.metrics.ObserveGrant(string(role), settings.source, err)
	if err != nil {
		service.logger.WarnContext(context, "role_grant_failed",
			slog.String("actor_id", actor.ID),
			slog.String("target_id", targetID),
			slog.String("role", string(role)),
			slog.Any("error", err),
		)
		return nil, err
	}

	service.logger.InfoContext(context, "role_granted",
		slog.String("actor_id", actor.ID),
		slog.String("target_id", targetID),
		slog.String("role", string(role)),
		slog.String("source", settings.source),
	)
	service.notify(context, targetID, role)

	return target, nil
}

// verifyActor re-resolves the actor and requires an active super_admin.
func (service *Service) verifyActor(context context.Context, actor *Principal) (*Principal, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	fresh, err := loadPrincipal(context, service.store, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := requireSuperAdmin(fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// applyGrant writes role, permissions and audit fields through store, which may
// be a transaction.
func (service *Service) applyGrant(context context.Context, store docstore.Store, actorID, targetID string, role Role, settings grantOptions) (*Principal, error) {
	permissions, _ := PermissionsFor(role)
	if settings.permissions != nil {
		permissions = *settings.permissions
	}

	profile := schema.UserProfile
	now := service.now().UTC()
	fields := docstore.Fields{
		profile.Role:        string(role),
		profile.Permissions: permissions.Flags(),
		profile.UpdatedAt:   now,
		profile.UpdatedBy:   actorID,
	}

	document, err := store.Get(context, profile.Collection, targetID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		if settings.hasVersion {
			return nil, apperr.Conflict("User profile was removed concurrently")
		}
		if err := service.requireKnownPrincipal(context, targetID); err != nil {
			return nil, err
		}
		fields[profile.IsActive] = true
		fields[profile.CreatedAt] = now
		document, err = store.Create(context, profile.Collection, targetID, fields)

	case err != nil:
		return nil, dberr.Wrap(err, "User profile")

	default:
		expected := document.Version
		if settings.hasVersion {
			if settings.expectedVersion != document.Version {
				return nil, apperr.Conflict("User profile was modified concurrently")
			}
			expected = settings.expectedVersion
		}
		document, err = store.Update(context, profile.Collection, targetID, fields, docstore.IfVersion(expected))
	}

	if err != nil {
		return nil, dberr.Wrap(err, "User profile")
	}
	return principalFromDocument(document)
}

func (service *Service) requireKnownPrincipal(context context.Context, principalID string) error {
	if service.directory == nil {
		return apperr.NotFound("User")
	}
	exists, err := service.directory.PrincipalExists(context, principalID)
	if err != nil {
		return dberr.Wrap(err, "User")
	}
	if !exists {
		return apperr.NotFound("User")
	}
	return nil
}

func (service *Service) notify(context context.Context, principalID string, role Role) {
	if service.notifier == nil {
		return
	}
	service.notifier.RoleChanged(context, principalID, role)
}

// actorBootstrap is recorded as UpdatedBy for the first super admin.
const actorBootstrap = "bootstrap"

/*
BootstrapSuperAdmin makes principalID the first super admin. It refuses with
CONFLICT once any super admin exists, so it cannot be used to escalate later.

Parameters:
  - context: context.Context
  - principalID: string (must have a profile)

Returns:
  - *Principal: The new super admin
  - error: CONFLICT, NOT_FOUND, STORE_UNAVAILABLE
*/
func (service *Service) BootstrapSuperAdmin(context context.Context, principalID string) (*Principal, error) {
	profile := schema.UserProfile
	var principal *Principal

	err := service.inTransaction(context, func(store docstore.Store) error {
		query := docstore.Query{}.Where(profile.Role, docstore.OpEqual, string(RoleSuperAdmin))
		count, err := store.Count(context, profile.Collection, query)
		if err != nil {
			return dberr.Wrap(err, "User profile")
		}
		if count > 0 {
			return apperr.Conflict("A super admin already exists")
		}

		if _, err := store.Get(context, profile.Collection, principalID); err != nil {
			return dberr.Wrap(err, "User profile")
		}

		principal, err = service.applyGrant(context, store, actorBootstrap, principalID, RoleSuperAdmin, grantOptions{source: sourceBootstrap})
		return err
	})
	err = dberr.Wrap(err, "User profile")
	service.metrics.ObserveGrant(string(RoleSuperAdmin), sourceBootstrap, err)
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "super_admin_bootstrapped", slog.String("target_id", principalID))
	service.notify(context, principalID, RoleSuperAdmin)
	return principal, nil
}
