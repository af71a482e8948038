// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package subscriber

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/identity"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
)

// # Service Layer

// Service implements the mailing list use cases.
type Service struct {
	subscribers Repository
	access      *authz.Service
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a [Service].
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// NewService constructs a [Service].
func NewService(subscribers Repository, access *authz.Service, logger *slog.Logger, options ...Option) *Service {
	service := &Service{
		subscribers: subscribers,
		access:      access,
		logger:      logger,
		now:         time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

/*
Subscribe adds email to the mailing list. No session is required.

The address is stored lowercased and trimmed, so case variants of one address
are the same subscriber.

Parameters:
  - email: string
  - source: string (optional, defaults to [DefaultSource])

Returns:
  - *Subscriber: The stored subscription
  - error: VALIDATION_ERROR, CONFLICT when already subscribed, STORE_UNAVAILABLE
*/
func (service *Service) Subscribe(context context.Context, email, source string) (*Subscriber, error) {
	email = identity.NormalizeEmail(email)
	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultSource
	}

	validator := &validate.Validator{}
	validator.
		Required("email", email).
		Email("email", email).
		MaxLen("email", email, MaxEmailLength).
		MaxLen("source", source, MaxSourceLength).
		Slug("source", source)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	subscriber := &Subscriber{
		Email:        email,
		Source:       source,
		SubscribedAt: service.now().UTC(),
	}
	if err := service.subscribers.Create(context, subscriber); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "subscriber_added", slog.String("source", source))
	return subscriber, nil
}

// List returns the mailing list, newest first. canManageUsers only.
func (service *Service) List(context context.Context, principal *authz.Principal) ([]*Subscriber, error) {
	if err := service.access.Authorize(principal, authz.CanManageUsers); err != nil {
		return nil, err
	}
	return service.subscribers.List(context)
}

// Unsubscribe removes email from the list. canManageUsers only.
func (service *Service) Unsubscribe(context context.Context, principal *authz.Principal, email string) error {
	if err := service.access.Authorize(principal, authz.CanManageUsers); err != nil {
		return err
	}
	if err := service.subscribers.Delete(context, identity.NormalizeEmail(email)); err != nil {
		return err
	}

	service.logger.InfoContext(context, "subscriber_removed", slog.String("actor_id", principal.ID))
	return nil
}
