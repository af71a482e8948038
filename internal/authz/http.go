// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/dreamlog/internal/platform/request"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
)

// # Definitions & Constructors

// PresenceFactory opens an [IdentityProvider] that follows one signed-in
// session, reporting sign-out and role changes as they happen.
type PresenceFactory interface {
	Presence(ctx context.Context, principalID, sessionID string) (IdentityProvider, error)
}

// Handler implements the petition, access and /me endpoints.
type Handler struct {
	service       *Service
	presence      PresenceFactory
	guardInterval time.Duration
	logger        *slog.Logger
}

// NewHandler constructs a [Handler]. presence may be nil, in which case access
// streams only re-check on their interval.
func NewHandler(service *Service, presence PresenceFactory, guardInterval time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		service:       service,
		presence:      presence,
		guardInterval: guardInterval,
		logger:        logger,
	}
}

// PetitionRoutes returns the writer petition routes.
//
// # Endpoints
//   - POST /               : Submit a petition.
//   - GET  /eligibility    : Whether the caller may submit.
//   - GET  /mine           : Caller's own petitions.
//   - GET  /               : Pending petitions (super_admin).
//   - GET  /{id}           : One petition (owner or super_admin).
//   - POST /{id}/approve   : Approve and grant contributor (super_admin).
//   - POST /{id}/reject    : Reject (super_admin).
func (handler *Handler) PetitionRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.submitPetition)
	router.Get("/eligibility", handler.eligibility)
	router.Get("/mine", handler.myPetitions)

	router.Group(func(r chi.Router) {
		r.Use(handler.service.EnforceRole(RoleSuperAdmin))
		r.Get("/", handler.pendingPetitions)
		r.Post("/{id}/approve", handler.approvePetition)
		r.Post("/{id}/reject", handler.rejectPetition)
	})

	router.Get("/{id}", handler.getPetition)

	return router
}

// AccessRoutes returns the access-guard routes.
//
// # Endpoints
//   - GET /check  : One verdict for ?role= or ?capability=.
//   - GET /stream : Server-sent verdict stream for ?role= or ?capability=.
func (handler *Handler) AccessRoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/check", handler.checkAccess)
	router.Get("/stream", handler.streamAccess)
	return router
}

// MeRoutes returns the caller's authorization summary.
func (handler *Handler) MeRoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.me)
	return router
}

// # Request Payloads

type reviewRequest struct {
	Notes string `json:"notes"`
}

type meResponse struct {
	*Principal
	Permissions map[string]bool `json:"permissions"`
}

// # Petition Handlers

/*
submitPetition files a writer petition for the caller.

POST /api/v1/petitions

Response:
  - 201: Petition
  - 401: Not signed in
  - 409: DUPLICATE_PENDING, ALREADY_PRIVILEGED
  - 429: COOLDOWN_ACTIVE (Retry-After set)
*/
func (handler *Handler) submitPetition(writer http.ResponseWriter, request *http.Request) {
	principal, err := RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input PetitionInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	petition, err := handler.service.SubmitPetition(request.Context(), principal, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, petition)
}

func (handler *Handler) eligibility(writer http.ResponseWriter, request *http.Request) {
	principal, err := RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	eligibility, err := handler.service.CanSubmitPetition(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, eligibility)
}

func (handler *Handler) myPetitions(writer http.ResponseWriter, request *http.Request) {
	principal, err := RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	petitions, err := handler.service.ListMyPetitions(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, petitions)
}

func (handler *Handler) pendingPetitions(writer http.ResponseWriter, request *http.Request) {
	petitions, err := handler.service.ListPendingPetitions(request.Context(), PrincipalFrom(request.Context()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, petitions)
}

func (handler *Handler) getPetition(writer http.ResponseWriter, request *http.Request) {
	principal, err := RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	petition, err := handler.service.GetPetition(request.Context(), principal, requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, petition)
}

/*
approvePetition approves a pending petition, granting contributor.

POST /api/v1/petitions/{id}/approve

Response:
  - 200: Petition (status approved)
  - 403: Caller is not super_admin
  - 404: Petition missing
  - 409: INVALID_TRANSITION (already reviewed), CONFLICT
  - 500: PARTIAL_FAILURE
  - 503: STORE_UNAVAILABLE
*/
func (handler *Handler) approvePetition(writer http.ResponseWriter, request *http.Request) {
	handler.review(writer, request, handler.service.ApprovePetition)
}

func (handler *Handler) rejectPetition(writer http.ResponseWriter, request *http.Request) {
	handler.review(writer, request, handler.service.RejectPetition)
}

type reviewFunc func(ctx context.Context, actor *Principal, petitionID, notes string) (*Petition, error)

func (handler *Handler) review(writer http.ResponseWriter, request *http.Request, decide reviewFunc) {
	var input reviewRequest
	if err := requestutil.DecodeOptionalJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	petition, err := decide(request.Context(), PrincipalFrom(request.Context()), requestutil.Param(request, "id"), input.Notes)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, petition)
}

// # Me

func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	principal, err := RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, meResponse{
		Principal:   principal,
		Permissions: principal.Permissions().Flags(),
	})
}

// # Access Guard

// requirementFrom parses ?role= or ?capability=.
func requirementFrom(request *http.Request) (Requirement, error) {
	var requirement Requirement

	if raw := requestutil.Query(request, "role"); raw != "" {
		role := Role(raw)
		if !role.Valid() {
			return requirement, apperr.ValidationError("Unknown role",
				apperr.FieldError{Field: "role", Message: "Must be one of the defined roles"})
		}
		requirement.Role = role
	}

	if raw := requestutil.Query(request, "capability"); raw != "" {
		capability, err := ParseCapability(raw)
		if err != nil {
			return requirement, apperr.ValidationError("Unknown capability",
				apperr.FieldError{Field: "capability", Message: "Must be a known capability"})
		}
		requirement.Capability = capability
	}

	if requirement.Role == "" && requirement.Capability == "" {
		return requirement, apperr.ValidationError("A role or capability is required")
	}
	return requirement, nil
}

func (handler *Handler) checkAccess(writer http.ResponseWriter, request *http.Request) {
	requirement, err := requirementFrom(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	guard := handler.service.NewGuard(requirement, handler.guardInterval)
	respond.OK(writer, guard.Evaluate(request.Context(), ctxutil.GetUserID(request.Context())))
}

/*
streamAccess keeps an access verdict up to date over server-sent events.

GET /api/v1/access/stream?role=super_admin

Each verdict is an event named "verdict" carrying a JSON [Verdict]. Comments are
sent periodically to keep proxies from closing the connection.
*/
func (handler *Handler) streamAccess(writer http.ResponseWriter, request *http.Request) {
	requirement, err := requirementFrom(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	ctx := request.Context()
	logger := ctxutil.GetLogger(ctx)

	var provider IdentityProvider = staticIdentity(claims.UserID)
	if handler.presence != nil {
		provider, err = handler.presence.Presence(ctx, claims.UserID, claims.SessionID)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	session := handler.service.BindSession(ctx, provider)
	defer session.Close()

	controller := http.NewResponseController(writer)
	_ = controller.SetWriteDeadline(time.Time{})

	header := writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	writer.WriteHeader(http.StatusOK)
	_ = controller.Flush()

	verdicts := make(chan Verdict, 1)
	guard := handler.service.NewGuard(requirement, handler.guardInterval)
	go func() {
		defer close(verdicts)
		_ = guard.Run(ctx, session, func(verdict Verdict) {
			select {
			case verdicts <- verdict:
			case <-ctx.Done():
			}
		})
	}()

	heartbeat := time.NewTicker(constants.SSEHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case verdict, ok := <-verdicts:
			if !ok {
				return
			}
			if err := writeEvent(writer, controller, "verdict", verdict); err != nil {
				logger.DebugContext(ctx, "access_stream_closed", slog.Any("error", err))
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(writer, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := controller.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(writer http.ResponseWriter, controller *http.ResponseController, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode_event_failed: %w", err)
	}
	if _, err := fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return controller.Flush()
}

// staticIdentity is a provider whose principal never changes.
type staticIdentity string

func (identity staticIdentity) CurrentPrincipalID() (string, bool) {
	return string(identity), identity != ""
}

func (identity staticIdentity) OnSessionChange(func(string)) func() { return func() {} }
