// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package authz owns every authorization decision of the blog.

It holds the immutable role→permission table, resolves a principal's role from
the principal's profile document on every check, and is the only code path
allowed to write roles. Writer petitions, the request path for contributor
access, are reviewed here as well.

Architecture:

  - Decisions: [HasPermission], [CanEditPost], [CanDeletePost] are pure functions.
  - Resolution: [Service.LoadRole] reads fresh state; nothing is cached.
  - Mutations: [Service.GrantRole] and the operations built on it.
  - Binding: [Session] follows an identity provider and discards stale resolutions.
  - Enforcement: [Guard] and the HTTP middleware re-check access continuously.
*/
package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
	"github.com/taibuivan/dreamlog/internal/platform/metrics"
)

// # Collaborators

// Directory answers whether a principal exists in the identity provider.
type Directory interface {
	PrincipalExists(context context.Context, principalID string) (bool, error)
}

// RoleNotifier is told after a role write commits, so bound sessions re-resolve.
type RoleNotifier interface {
	RoleChanged(context context.Context, principalID string, role Role)
}

// # Service

// Service implements role resolution, role grants and writer petitions.
type Service struct {
	store     docstore.Store
	directory Directory
	notifier  RoleNotifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	cooldown  time.Duration
}

// Option configures a [Service].
type Option func(*Service)

// WithDirectory lets grants create profiles for principals that exist in identity.
func WithDirectory(directory Directory) Option {
	return func(service *Service) { service.directory = directory }
}

// WithNotifier registers the role-change listener.
func WithNotifier(notifier RoleNotifier) Option {
	return func(service *Service) { service.notifier = notifier }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(service *Service) { service.metrics = m }
}

// WithClock replaces the wall clock, mainly for cooldown tests.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// WithCooldown overrides the rejection cooldown.
func WithCooldown(cooldown time.Duration) Option {
	return func(service *Service) { service.cooldown = cooldown }
}

// NewService constructs a [Service] on top of a document store.
func NewService(store docstore.Store, logger *slog.Logger, options ...Option) *Service {
	service := &Service{
		store:    store,
		logger:   logger,
		now:      time.Now,
		cooldown: constants.PetitionCooldown,
	}
	for _, option := range options {
		option(service)
	}
	if service.logger == nil {
		service.logger = slog.Default()
	}
	return service
}

// # Role Resolution

/*
LoadRole reads the principal's current role from the profile store.

A missing profile or a missing role field resolves to [RoleUser]. A role string
outside the closed set is an UNKNOWN_ROLE error, never a silent default.

Parameters:
  - context: context.Context
  - principalID: string

Returns:
  - Role: Resolved role
  - error: UNAUTHENTICATED, UNKNOWN_ROLE or STORE_UNAVAILABLE
*/
func (service *Service) LoadRole(context context.Context, principalID string) (Role, error) {
	principal, err := service.LoadPrincipal(context, principalID)
	if err != nil {
		return "", err
	}
	return principal.Role, nil
}

/*
LoadPrincipal resolves the principal's full authorization state.

Missing profiles resolve to an active [RoleUser] principal, matching a fresh
sign-up whose profile has not been written yet.
*/
func (service *Service) LoadPrincipal(context context.Context, principalID string) (*Principal, error) {
	if principalID == "" {
		return nil, apperr.Unauthenticated("Authentication required")
	}

	started := service.now()
	principal, err := loadPrincipal(context, service.store, principalID)
	service.metrics.ObserveRoleResolution(service.now().Sub(started), err)

	if apperr.HasCode(err, apperr.CodeUnknownRole) {
		service.logger.ErrorContext(context, "authz_unknown_role",
			slog.String("principal_id", principalID),
			slog.Any("error", err),
		)
	}
	return principal, err
}

// loadProfile returns the principal's profile document, or NOT_FOUND.
func (service *Service) loadProfile(context context.Context, principalID string) (*docstore.Document, error) {
	if principalID == "" {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	document, err := service.store.Get(context, schema.UserProfile.Collection, principalID)
	if err != nil {
		return nil, dberr.Wrap(err, "User profile")
	}
	return document, nil
}

func loadPrincipal(context context.Context, reader docstore.Reader, principalID string) (*Principal, error) {
	document, err := reader.Get(context, schema.UserProfile.Collection, principalID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &Principal{ID: principalID, Role: RoleUser, IsActive: true}, nil
	}
	if err != nil {
		return nil, dberr.Wrap(err, "User profile")
	}
	return principalFromDocument(document)
}

// principalFromDocument decodes a profile document.
func principalFromDocument(document *docstore.Document) (*Principal, error) {
	profile := schema.UserProfile

	role := RoleUser
	if raw := document.String(profile.Role); raw != "" {
		parsed, err := ParseRole(raw)
		if err != nil {
			return nil, err
		}
		role = parsed
	} else if document.Has(profile.Role) {
		// Present but not a string.
		return nil, apperr.UnknownRole("<non-string>")
	}

	return &Principal{
		ID:          document.ID,
		Email:       document.String(profile.Email),
		DisplayName: document.String(profile.DisplayName),
		IsActive:    document.BoolOr(profile.IsActive, true),
		Role:        role,
	}, nil
}

// # Decisions

// Check evaluates capability for a resolved principal and records the decision.
func (service *Service) Check(principal *Principal, capability Capability) bool {
	allowed := principal.Can(capability)
	service.metrics.ObserveDecision(string(capability), allowed)
	return allowed
}

// Authorize is [Service.Check] expressed as an error for service-layer guards.
func (service *Service) Authorize(principal *Principal, capability Capability) error {
	if principal == nil {
		return apperr.Unauthenticated("Authentication required")
	}
	if !service.Check(principal, capability) {
		return apperr.Forbidden("Insufficient permissions")
	}
	return nil
}

// requireSuperAdmin rejects every actor except an active super_admin.
func requireSuperAdmin(actor *Principal) error {
	if actor == nil {
		return apperr.Unauthenticated("Authentication required")
	}
	if !actor.IsActive || actor.Role != RoleSuperAdmin {
		return apperr.Forbidden("Only a super admin may change roles")
	}
	return nil
}
