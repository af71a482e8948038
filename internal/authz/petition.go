// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
)

// # Writer Petitions

// PetitionStatus is the state of a [Petition]. Approved and rejected are terminal.
type PetitionStatus string

const (
	PetitionPending  PetitionStatus = "pending"
	PetitionApproved PetitionStatus = "approved"
	PetitionRejected PetitionStatus = "rejected"
)

// Petition is a user's request to become a contributor.
type Petition struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	UserEmail   string         `json:"userEmail"`
	DisplayName string         `json:"displayName"`
	Status      PetitionStatus `json:"status"`
	Motivation  string         `json:"motivation"`
	Experience  string         `json:"experience,omitempty"`
	SampleLinks []string       `json:"sampleLinks,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
	ReviewedAt  *time.Time     `json:"reviewedAt,omitempty"`
	ReviewedBy  string         `json:"reviewedBy,omitempty"`
	ReviewNotes string         `json:"reviewNotes,omitempty"`
}

// PetitionInput is the applicant-provided part of a petition.
type PetitionInput struct {
	Motivation  string   `json:"motivation"`
	Experience  string   `json:"experience"`
	SampleLinks []string `json:"sampleLinks"`
}

// Eligibility is the answer of [Service.CanSubmitPetition].
type Eligibility struct {
	Allowed    bool       `json:"allowed"`
	Reason     string     `json:"reason,omitempty"`
	RetryAfter *time.Time `json:"retryAfter,omitempty"`
}

// Ineligibility reasons, equal to the matching error codes.
const (
	ReasonAlreadyPrivileged = apperr.CodeAlreadyPrivileged
	ReasonPendingExists     = apperr.CodePendingExists
	ReasonCooldownActive    = apperr.CodeCooldownActive
)

const (
	maxMotivationLen = 2000
	maxExperienceLen = 2000
	maxSampleLinks   = 10
	maxNotesLen      = 2000
)

// # Eligibility

/*
CanSubmitPetition reports whether principal may file a new petition.

Checks run in a fixed order: writing privileges, an open petition, then the
rejection cooldown. The cooldown ends exactly [constants.PetitionCooldown] after
the latest rejection; at that instant submission is allowed again.

Parameters:
  - context: context.Context
  - principal: *Principal

Returns:
  - Eligibility: Allowed, or the reason and (for cooldowns) the retry instant
  - error: UNAUTHENTICATED or STORE_UNAVAILABLE
*/
func (service *Service) CanSubmitPetition(context context.Context, principal *Principal) (Eligibility, error) {
	if principal == nil {
		return Eligibility{}, apperr.Unauthenticated("Authentication required")
	}

	role, err := service.LoadRole(context, principal.ID)
	if err != nil {
		return Eligibility{}, err
	}
	if IsContributorOrAbove(role) {
		return Eligibility{Reason: ReasonAlreadyPrivileged}, nil
	}

	petitions, err := service.petitionsOf(context, service.store, principal.ID)
	if err != nil {
		return Eligibility{}, err
	}
	if hasPending(petitions) {
		return Eligibility{Reason: ReasonPendingExists}, nil
	}
	if until, active := service.cooldownUntil(petitions); active {
		return Eligibility{Reason: ReasonCooldownActive, RetryAfter: &until}, nil
	}

	return Eligibility{Allowed: true}, nil
}

// cooldownUntil returns the end of the cooldown started by the latest rejection.
func (service *Service) cooldownUntil(petitions []*Petition) (time.Time, bool) {
	var latest time.Time
	for _, petition := range petitions {
		if petition.Status != PetitionRejected || petition.ReviewedAt == nil {
			continue
		}
		if petition.ReviewedAt.After(latest) {
			latest = *petition.ReviewedAt
		}
	}
	if latest.IsZero() {
		return time.Time{}, false
	}

	until := latest.Add(service.cooldown)
	return until, service.now().Before(until)
}

func hasPending(petitions []*Petition) bool {
	for _, petition := range petitions {
		if petition.Status == PetitionPending {
			return true
		}
	}
	return false
}

// # Submission

/*
SubmitPetition files a pending petition for principal.

Returns:
  - *Petition: The stored petition
  - error: UNAUTHENTICATED, VALIDATION_ERROR, DUPLICATE_PENDING, ALREADY_PRIVILEGED,
    COOLDOWN_ACTIVE or STORE_UNAVAILABLE
*/
func (service *Service) SubmitPetition(context context.Context, principal *Principal, input PetitionInput) (*Petition, error) {
	if principal == nil || principal.ID == "" {
		return nil, apperr.Unauthenticated("Authentication required")
	}

	input.Motivation = strings.TrimSpace(input.Motivation)
	input.Experience = strings.TrimSpace(input.Experience)

	validator := &validate.Validator{}
	validator.
		Required("motivation", input.Motivation).
		MaxLen("motivation", input.Motivation, maxMotivationLen).
		MaxLen("experience", input.Experience, maxExperienceLen).
		MaxItems("sampleLinks", len(input.SampleLinks), maxSampleLinks).
		URLs("sampleLinks", input.SampleLinks)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	var petition *Petition
	err := service.inTransaction(context, func(store docstore.Store) error {
		petitions, err := service.petitionsOf(context, store, principal.ID)
		if err != nil {
			return err
		}
		if hasPending(petitions) {
			return apperr.DuplicatePending()
		}

		current, err := loadPrincipal(context, store, principal.ID)
		if err != nil {
			return err
		}
		if IsContributorOrAbove(current.Role) {
			return apperr.AlreadyPrivileged()
		}
		if until, active := service.cooldownUntil(petitions); active {
			return apperr.CooldownActive(until)
		}

		p := schema.WriterPetition
		document, err := store.Create(context, p.Collection, "", docstore.Fields{
			p.UserID:      principal.ID,
			p.UserEmail:   principal.Email,
			p.DisplayName: principal.DisplayName,
			p.Status:      string(PetitionPending),
			p.Motivation:  input.Motivation,
			p.Experience:  input.Experience,
			p.SampleLinks: input.SampleLinks,
			p.SubmittedAt: service.now().UTC(),
		})
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return apperr.DuplicatePending()
		}
		if err != nil {
			return dberr.Wrap(err, "Petition")
		}

		petition = petitionFromDocument(document)
		return nil
	})

	service.metrics.ObservePetition("submit", err)
	if err != nil {
		return nil, dberr.Wrap(err, "Petition")
	}

	service.logger.InfoContext(context, "petition_submitted",
		slog.String("petition_id", petition.ID),
		slog.String("user_id", principal.ID),
	)
	return petition, nil
}

// # Review

/*
ApprovePetition approves a pending petition and grants the petitioner the
contributor role.

Both writes commit in one transaction when the store supports it. Otherwise
the petition is approved first and, if the role write fails, reverted to
pending. A failed revert is reported as PARTIAL_FAILURE.

A petitioner who already holds contributor or higher keeps their role.

Parameters:
  - context: context.Context
  - actor: *Principal (must be super_admin)
  - petitionID: string
  - notes: string (optional review notes)

Returns:
  - *Petition: The approved petition
  - error: FORBIDDEN, NOT_FOUND, INVALID_TRANSITION, CONFLICT, STORE_UNAVAILABLE, PARTIAL_FAILURE
*/
func (service *Service) ApprovePetition(context context.Context, actor *Principal, petitionID, notes string) (*Petition, error) {
	actor, err := service.verifyActor(context, actor)
	if err != nil {
		return nil, err
	}
	if err := validateNotes(notes); err != nil {
		return nil, err
	}

	var (
		petition *Petition
		granted  bool
	)
	if _, ok := service.store.(docstore.Transactor); ok {
		err = service.inTransaction(context, func(tx docstore.Store) error {
			petition, granted, err = service.approve(context, tx, actor.ID, petitionID, notes)
			return err
		})
		err = dberr.Wrap(err, "Petition")
	} else {
		petition, granted, err = service.approveWithCompensation(context, actor.ID, petitionID, notes)
	}

	service.metrics.ObservePetition("approve", err)
	if granted {
		service.metrics.ObserveGrant(string(RoleContributor), sourcePetition, err)
	}
	if err != nil {
		service.logger.WarnContext(context, "petition_approve_failed",
			slog.String("petition_id", petitionID),
			slog.Any("error", err),
		)
		return nil, err
	}

	service.logger.InfoContext(context, "petition_approved",
		slog.String("petition_id", petition.ID),
		slog.String("user_id", petition.UserID),
		slog.String("reviewed_by", actor.ID),
		slog.Bool("role_granted", granted),
	)
	if granted {
		service.notify(context, petition.UserID, RoleContributor)
	}
	return petition, nil
}

// approve marks the petition approved and grants contributor through store.
func (service *Service) approve(context context.Context, store docstore.Store, actorID, petitionID, notes string) (*Petition, bool, error) {
	document, err := loadPendingPetition(context, store, petitionID)
	if err != nil {
		return nil, false, err
	}

	reviewed, err := store.Update(context, schema.WriterPetition.Collection, petitionID,
		service.reviewFields(PetitionApproved, actorID, notes), docstore.IfVersion(document.Version))
	if err != nil {
		return nil, false, dberr.Wrap(err, "Petition")
	}
	petition := petitionFromDocument(reviewed)

	current, err := loadPrincipal(context, store, petition.UserID)
	if err != nil {
		return nil, false, err
	}
	if current.Role != RoleUser {
		return petition, false, nil
	}

	if _, err := service.applyGrant(context, store, actorID, petition.UserID, RoleContributor, grantOptions{source: sourcePetition}); err != nil {
		return nil, true, err
	}
	return petition, true, nil
}

// approveWithCompensation is the saga used by stores without transactions.
func (service *Service) approveWithCompensation(ctx context.Context, actorID, petitionID, notes string) (*Petition, bool, error) {
	document, err := loadPendingPetition(ctx, service.store, petitionID)
	if err != nil {
		return nil, false, err
	}

	p := schema.WriterPetition
	reviewed, err := service.store.Update(ctx, p.Collection, petitionID,
		service.reviewFields(PetitionApproved, actorID, notes), docstore.IfVersion(document.Version))
	if err != nil {
		return nil, false, dberr.Wrap(err, "Petition")
	}
	petition := petitionFromDocument(reviewed)

	current, err := loadPrincipal(ctx, service.store, petition.UserID)
	if err == nil && current.Role != RoleUser {
		return petition, false, nil
	}
	if err == nil {
		_, err = service.applyGrant(ctx, service.store, actorID, petition.UserID, RoleContributor, grantOptions{source: sourcePetition})
		if err == nil {
			return petition, true, nil
		}
	}

	// Revert to pending. The detached context lets the revert finish after a
	// client disconnect cancelled the grant.
	revert := docstore.Fields{
		p.Status:      string(PetitionPending),
		p.ReviewedAt:  nil,
		p.ReviewedBy:  nil,
		p.ReviewNotes: nil,
	}
	if _, revertErr := service.store.Update(context.WithoutCancel(ctx), p.Collection, petitionID, revert, docstore.IfVersion(reviewed.Version)); revertErr != nil {
		service.logger.ErrorContext(ctx, "petition_compensation_failed",
			slog.String("petition_id", petitionID),
			slog.Any("grant_error", err),
			slog.Any("revert_error", revertErr),
		)
		return nil, true, apperr.PartialFailure(
			"Petition was approved but the role grant failed and could not be rolled back",
			errors.Join(err, revertErr),
		)
	}

	service.logger.WarnContext(ctx, "petition_approval_reverted",
		slog.String("petition_id", petitionID),
		slog.Any("error", err),
	)
	return nil, true, err
}

/*
RejectPetition closes a pending petition without any role change. The rejection
starts the resubmission cooldown.
*/
func (service *Service) RejectPetition(context context.Context, actor *Principal, petitionID, notes string) (*Petition, error) {
	actor, err := service.verifyActor(context, actor)
	if err != nil {
		return nil, err
	}
	if err := validateNotes(notes); err != nil {
		return nil, err
	}

	petition, err := service.reject(context, actor.ID, petitionID, notes)
	service.metrics.ObservePetition("reject", err)
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "petition_rejected",
		slog.String("petition_id", petition.ID),
		slog.String("user_id", petition.UserID),
		slog.String("reviewed_by", actor.ID),
	)
	return petition, nil
}

func (service *Service) reject(context context.Context, actorID, petitionID, notes string) (*Petition, error) {
	document, err := loadPendingPetition(context, service.store, petitionID)
	if err != nil {
		return nil, err
	}
	reviewed, err := service.store.Update(context, schema.WriterPetition.Collection, petitionID,
		service.reviewFields(PetitionRejected, actorID, notes), docstore.IfVersion(document.Version))
	if err != nil {
		return nil, dberr.Wrap(err, "Petition")
	}
	return petitionFromDocument(reviewed), nil
}

func (service *Service) reviewFields(status PetitionStatus, actorID, notes string) docstore.Fields {
	p := schema.WriterPetition
	return docstore.Fields{
		p.Status:      string(status),
		p.ReviewedAt:  service.now().UTC(),
		p.ReviewedBy:  actorID,
		p.ReviewNotes: strings.TrimSpace(notes),
	}
}

func validateNotes(notes string) error {
	return (&validate.Validator{}).MaxLen("notes", notes, maxNotesLen).Err()
}

// loadPendingPetition returns the petition document or NOT_FOUND / INVALID_TRANSITION.
func loadPendingPetition(context context.Context, store docstore.Reader, petitionID string) (*docstore.Document, error) {
	if petitionID == "" {
		return nil, apperr.NotFound("Petition")
	}
	document, err := store.Get(context, schema.WriterPetition.Collection, petitionID)
	if err != nil {
		return nil, dberr.Wrap(err, "Petition")
	}
	if status := PetitionStatus(document.String(schema.WriterPetition.Status)); status != PetitionPending {
		return nil, apperr.InvalidTransition("Petition is already " + string(status))
	}
	return document, nil
}

// # Listing

// ListPendingPetitions returns open petitions oldest first. super_admin only.
func (service *Service) ListPendingPetitions(context context.Context, actor *Principal) ([]*Petition, error) {
	if _, err := service.verifyActor(context, actor); err != nil {
		return nil, err
	}

	p := schema.WriterPetition
	query := docstore.Query{}.
		Where(p.Status, docstore.OpEqual, string(PetitionPending)).
		OrderBy(p.SubmittedAt, false)

	documents, err := docstore.Collect(service.store.Query(context, p.Collection, query))
	if err != nil {
		return nil, dberr.Wrap(err, "Petition")
	}
	return petitionsFromDocuments(documents), nil
}

// ListMyPetitions returns the principal's own petitions, newest first.
func (service *Service) ListMyPetitions(context context.Context, principal *Principal) ([]*Petition, error) {
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	return service.petitionsOf(context, service.store, principal.ID)
}

// GetPetition returns one petition to its owner or to a super_admin.
func (service *Service) GetPetition(context context.Context, principal *Principal, petitionID string) (*Petition, error) {
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	document, err := service.store.Get(context, schema.WriterPetition.Collection, petitionID)
	if err != nil {
		return nil, dberr.Wrap(err, "Petition")
	}
	petition := petitionFromDocument(document)
	if petition.UserID != principal.ID && requireSuperAdmin(principal) != nil {
		// Hide other users' petitions entirely.
		return nil, apperr.NotFound("Petition")
	}
	return petition, nil
}

func (service *Service) petitionsOf(context context.Context, store docstore.Reader, userID string) ([]*Petition, error) {
	p := schema.WriterPetition
	query := docstore.Query{}.
		Where(p.UserID, docstore.OpEqual, userID).
		OrderBy(p.SubmittedAt, true)

	documents, err := docstore.Collect(store.Query(context, p.Collection, query))
	if err != nil {
		return nil, dberr.Wrap(err, "Petition")
	}
	return petitionsFromDocuments(documents), nil
}

// inTransaction runs fn atomically when the store supports it.
func (service *Service) inTransaction(ctx context.Context, fn func(docstore.Store) error) error {
	if transactor, ok := service.store.(docstore.Transactor); ok {
		return transactor.RunInTransaction(ctx, func(_ context.Context, tx docstore.Store) error {
			return fn(tx)
		})
	}
	return fn(service.store)
}

// # Mapping

func petitionFromDocument(document *docstore.Document) *Petition {
	p := schema.WriterPetition
	petition := &Petition{
		ID:          document.ID,
		UserID:      document.String(p.UserID),
		UserEmail:   document.String(p.UserEmail),
		DisplayName: document.String(p.DisplayName),
		Status:      PetitionStatus(document.String(p.Status)),
		Motivation:  document.String(p.Motivation),
		Experience:  document.String(p.Experience),
		SampleLinks: document.Strings(p.SampleLinks),
		ReviewedBy:  document.String(p.ReviewedBy),
		ReviewNotes: document.String(p.ReviewNotes),
	}
	if submitted, ok := document.Time(p.SubmittedAt); ok {
		petition.SubmittedAt = submitted
	}
	if reviewed, ok := document.Time(p.ReviewedAt); ok {
		petition.ReviewedAt = &reviewed
	}
	return petition
}

func petitionsFromDocuments(documents []*docstore.Document) []*Petition {
	petitions := make([]*Petition, 0, len(documents))
	for _, document := range documents {
		petitions = append(petitions, petitionFromDocument(document))
	}
	return petitions
}
