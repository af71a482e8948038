// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	requestutil "github.com/taibuivan/dreamlog/internal/platform/request"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
	"github.com/taibuivan/dreamlog/pkg/pagination"
	"github.com/taibuivan/dreamlog/pkg/pointer"
)

const maxDisplayNameLength = 80

// # Definitions & Constructors

// Handler implements the user administration and profile endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// AdminRoutes returns the /admin/users router.
//
// # Endpoints
//   - GET  /               : Paginated listing (?role=, ?active=, ?q=).
//   - GET  /stats          : User count per role.
//   - GET  /{id}           : One user.
//   - POST /{id}/activate  : Reactivate.
//   - POST /{id}/deactivate: Deactivate and sign out everywhere.
//   - PUT  /{id}/role      : Assign a role (super_admin).
//   - POST /{id}/promote   : One step up (super_admin).
//   - POST /{id}/demote    : One step down (super_admin).
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.list)
	router.Get("/stats", handler.stats)
	router.Get("/{id}", handler.get)
	router.Post("/{id}/activate", handler.activate)
	router.Post("/{id}/deactivate", handler.deactivate)
	router.Put("/{id}/role", handler.setRole)
	router.Post("/{id}/promote", handler.promote)
	router.Post("/{id}/demote", handler.demote)

	return router
}

// ProfileRoutes returns the caller's own profile routes.
//
// # Endpoints
//   - GET   / : The caller's profile.
//   - PATCH / : Change the display name.
func (handler *Handler) ProfileRoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.profile)
	router.Patch("/", handler.updateProfile)
	return router
}

// # Request Payloads

type roleRequest struct {
	Role            string          `json:"role"`
	Permissions     map[string]bool `json:"permissions,omitempty"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

type profileRequest struct {
	DisplayName *string `json:"displayName"`
}

// # Admin Handlers

/*
list returns one page of users.

GET /api/v1/admin/users

Response:
  - 200: Paginated users
  - 400: Unknown role or malformed active filter
  - 403: Missing canManageUsers
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	filter, err := filterFrom(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	params := pagination.FromRequest(request)
	page, err := handler.service.List(request.Context(), authz.PrincipalFrom(request.Context()), filter, params.Offset(), params.Limit)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	users := page.Users
	if users == nil {
		users = []*User{}
	}
	respond.Paginated(writer, users, pagination.NewMeta(params.Page, params.Limit, page.Total))
}

func filterFrom(request *http.Request) (Filter, error) {
	filter := Filter{Search: requestutil.Query(request, "q")}

	if raw := requestutil.Query(request, "role"); raw != "" {
		role := authz.Role(raw)
		if !role.Valid() {
			return filter, apperr.ValidationError("Unknown role",
				apperr.FieldError{Field: "role", Message: "Must be one of the defined roles"})
		}
		filter.Role = role
	}

	switch requestutil.Query(request, "active") {
	case "":
	case "true":
		filter.Active = pointer.To(true)
	case "false":
		filter.Active = pointer.To(false)
	default:
		return filter, apperr.ValidationError("Invalid active filter",
			apperr.FieldError{Field: "active", Message: "Must be true or false"})
	}
	return filter, nil
}

func (handler *Handler) stats(writer http.ResponseWriter, request *http.Request) {
	counts, err := handler.service.RoleCounts(request.Context(), authz.PrincipalFrom(request.Context()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, counts)
}

func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	user, err := handler.service.Get(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}

func (handler *Handler) activate(writer http.ResponseWriter, request *http.Request) {
	handler.setActive(writer, request, true)
}

/*
deactivate blocks a user and ends their sessions.

POST /api/v1/admin/users/{id}/deactivate

Response:
  - 200: User
  - 403: Missing canManageUsers, self-targeting, or super_admin target
  - 404: User missing
  - 409: Concurrent update
*/
func (handler *Handler) deactivate(writer http.ResponseWriter, request *http.Request) {
	handler.setActive(writer, request, false)
}

func (handler *Handler) setActive(writer http.ResponseWriter, request *http.Request, active bool) {
	user, err := handler.service.SetActive(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"), active)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}

/*
setRole assigns a role, optionally with a custom permission set.

PUT /api/v1/admin/users/{id}/role

Response:
  - 200: User
  - 400: Unknown role or capability
  - 403: Caller is not super_admin
  - 409: Stale expectedVersion
*/
func (handler *Handler) setRole(writer http.ResponseWriter, request *http.Request) {
	var input roleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required("role", input.Role).
		Custom("role", input.Role != "" && !authz.Role(input.Role).Valid(), "Must be one of the defined roles")
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.GrantRole(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"), RoleChange{
		Role:            authz.Role(input.Role),
		Permissions:     input.Permissions,
		ExpectedVersion: input.ExpectedVersion,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}

func (handler *Handler) promote(writer http.ResponseWriter, request *http.Request) {
	user, err := handler.service.Promote(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}

func (handler *Handler) demote(writer http.ResponseWriter, request *http.Request) {
	user, err := handler.service.Demote(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}

// # Profile Handlers

func (handler *Handler) profile(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.Get(request.Context(), principal, principal.ID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}

func (handler *Handler) updateProfile(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input profileRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	displayName := pointer.Val(input.DisplayName)
	v := &validate.Validator{}
	v.Required("displayName", displayName).
		MaxLen("displayName", displayName, maxDisplayNameLength)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.UpdateDisplayName(request.Context(), principal, displayName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}
