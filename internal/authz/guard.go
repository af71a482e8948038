// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
)

// # Access Requirements

// Requirement is what a guarded area demands: a minimum role, a capability, or both.
type Requirement struct {
	Role       Role
	Capability Capability
}

// RequireRoleAtLeast builds a role requirement.
func RequireRoleAtLeast(role Role) Requirement { return Requirement{Role: role} }

// RequireCapability builds a capability requirement.
func RequireCapability(capability Capability) Requirement {
	return Requirement{Capability: capability}
}

// satisfiedBy reports whether an active principal meets the requirement.
func (requirement Requirement) satisfiedBy(principal *Principal) bool {
	if requirement.Role != "" && !principal.Role.AtLeast(requirement.Role) {
		return false
	}
	if requirement.Capability != "" && !principal.Can(requirement.Capability) {
		return false
	}
	return true
}

/*
Require loads the principal's profile and checks requirement against it.

Unlike [Service.LoadPrincipal], a missing profile is NOT_FOUND: guarded areas
only admit principals whose profile has been provisioned.

Returns:
  - *Principal: Fresh principal
  - error: UNAUTHENTICATED, NOT_FOUND, FORBIDDEN, UNKNOWN_ROLE or STORE_UNAVAILABLE
*/
func (service *Service) Require(context context.Context, principalID string, requirement Requirement) (*Principal, error) {
	document, err := service.loadProfile(context, principalID)
	if err != nil {
		return nil, err
	}
	principal, err := principalFromDocument(document)
	if err != nil {
		return nil, err
	}
	if !principal.IsActive {
		return nil, apperr.Forbidden(VerdictDeactivated)
	}
	if !requirement.satisfiedBy(principal) {
		return nil, apperr.Forbidden(VerdictInsufficient)
	}
	return principal, nil
}

// RequireRole is [Service.Require] with a minimum role.
func (service *Service) RequireRole(context context.Context, principalID string, role Role) (*Principal, error) {
	return service.Require(context, principalID, RequireRoleAtLeast(role))
}

// # Guard

// Verdict reasons.
const (
	VerdictNotAuthenticated = "Not authenticated"
	VerdictInsufficient     = "Insufficient privileges"
	VerdictDeactivated      = "Account deactivated"
	VerdictSessionExpired   = "Session expired"
	VerdictProfileMissing   = "User profile not found"
	VerdictUnverifiable     = "Unable to verify access"
)

// Verdict is the outcome of one guard evaluation.
type Verdict struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	PrincipalID string    `json:"principalId,omitempty"`
	Role        Role      `json:"role,omitempty"`
	CheckedAt   time.Time `json:"checkedAt"`
}

func (verdict Verdict) same(other Verdict) bool {
	return verdict.Allowed == other.Allowed &&
		verdict.Reason == other.Reason &&
		verdict.PrincipalID == other.PrincipalID &&
		verdict.Role == other.Role
}

// Guard continuously re-validates a session against a [Requirement].
type Guard struct {
	service     *Service
	requirement Requirement
	interval    time.Duration
}

// NewGuard creates a guard. A non-positive interval uses [constants.GuardInterval].
func (service *Service) NewGuard(requirement Requirement, interval time.Duration) *Guard {
	if interval <= 0 {
		interval = constants.GuardInterval
	}
	return &Guard{service: service, requirement: requirement, interval: interval}
}

// Evaluate performs a single fresh check for principalID. Store failures fail closed.
func (guard *Guard) Evaluate(context context.Context, principalID string) Verdict {
	verdict := Verdict{PrincipalID: principalID, CheckedAt: guard.service.now().UTC()}

	principal, err := guard.service.Require(context, principalID, guard.requirement)
	switch {
	case err == nil:
		verdict.Allowed = true
		verdict.Role = principal.Role
	case apperr.HasCode(err, apperr.CodeUnauthenticated):
		verdict.Reason = VerdictNotAuthenticated
	case apperr.HasCode(err, apperr.CodeNotFound):
		verdict.Reason = VerdictProfileMissing
	case apperr.HasCode(err, apperr.CodeForbidden):
		verdict.Reason = apperr.As(err).Message
	default:
		verdict.Reason = VerdictUnverifiable
		guard.service.logger.WarnContext(context, "guard_evaluation_failed",
			slog.String("principal_id", principalID),
			slog.Any("error", err),
		)
	}

	guard.service.metrics.ObserveGuard(verdict.Allowed)
	return verdict
}

/*
Run re-evaluates access on every session change and on every tick, calling emit
whenever the verdict changes. The first verdict is always emitted.

A principal that signs out after having been admitted gets "Session expired"
rather than "Not authenticated". Run returns when context ends or the session closes.
*/
func (guard *Guard) Run(context context.Context, session *Session, emit func(Verdict)) error {
	changes, stop := session.Changes()
	defer stop()

	ticker := time.NewTicker(guard.interval)
	defer ticker.Stop()

	var (
		last     Verdict
		emitted  bool
		admitted bool
	)
	check := func(principalID string) {
		verdict := guard.Evaluate(context, principalID)
		if principalID == "" && admitted {
			verdict.Reason = VerdictSessionExpired
		}
		if verdict.Allowed {
			admitted = true
		}
		if emitted && verdict.same(last) {
			return
		}
		last, emitted = verdict, true
		emit(verdict)
	}

	state, err := session.Wait(context)
	if err != nil {
		return err
	}
	check(state.PrincipalID)

	for {
		select {
		case <-context.Done():
			return context.Err()

		case state, ok := <-changes:
			if !ok {
				return nil
			}
			if !state.Resolved {
				continue
			}
			check(state.PrincipalID)

		case <-ticker.C:
			check(session.State().PrincipalID)
		}
	}
}
