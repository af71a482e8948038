// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package subscriber

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dreamlog/internal/authz"
	requestutil "github.com/taibuivan/dreamlog/internal/platform/request"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
)

// Handler implements the mailing list endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /subscribers router.
//
// # Endpoints
//   - POST   /        : Subscribe an address (public).
//   - GET    /        : The mailing list (canManageUsers).
//   - DELETE /{email} : Remove an address (canManageUsers).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.subscribe)
	router.Get("/", handler.list)
	router.Delete("/{email}", handler.unsubscribe)

	return router
}

type subscribeRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

func (handler *Handler) subscribe(writer http.ResponseWriter, request *http.Request) {
	var input subscribeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	subscriber, err := handler.service.Subscribe(request.Context(), input.Email, input.Source)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, subscriber)
}

func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	subscribers, err := handler.service.List(request.Context(), authz.PrincipalFrom(request.Context()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, subscribers)
}

func (handler *Handler) unsubscribe(writer http.ResponseWriter, request *http.Request) {
	email, err := url.PathUnescape(requestutil.Param(request, "email"))
	if err != nil {
		respond.Error(writer, request, validate.RequiredError("email", "Must be a valid email address"))
		return
	}

	if err := handler.service.Unsubscribe(request.Context(), authz.PrincipalFrom(request.Context()), email); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}
