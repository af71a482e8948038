// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dreamlog/internal/authz"
	requestutil "github.com/taibuivan/dreamlog/internal/platform/request"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
	"github.com/taibuivan/dreamlog/pkg/pagination"
)

// Handler implements the comment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /comments router.
//
// # Endpoints
//   - GET    /?postId=     : Threaded approved comments of a published post.
//   - GET    /moderation   : Comments by ?status= (default pending), canModerateComments.
//   - POST   /             : Add a comment or reply.
//   - PATCH  /{id}         : Edit (author or moderator).
//   - DELETE /{id}         : Delete with replies (author or moderator).
//   - POST   /{id}/like    : Toggle the caller's like.
//   - PUT    /{id}/status  : Moderate (canModerateComments).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.thread)
	router.Get("/moderation", handler.queue)
	router.Post("/", handler.add)
	router.Patch("/{id}", handler.edit)
	router.Delete("/{id}", handler.delete)
	router.Post("/{id}/like", handler.like)
	router.Put("/{id}/status", handler.setStatus)

	return router
}

// # Request Payloads

type addRequest struct {
	PostID   string `json:"postId" validate:"required"`
	Content  string `json:"content" validate:"required,max=2000"`
	ParentID string `json:"parentId"`
}

type editRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved pending hidden"`
}

type likeResponse struct {
	Comment *Comment `json:"comment"`
	Liked   bool     `json:"liked"`
}

// # Handlers

func (handler *Handler) thread(writer http.ResponseWriter, request *http.Request) {
	postID := requestutil.Query(request, "postId")
	if postID == "" {
		respond.Error(writer, request, validate.RequiredError("postId", "Query parameter postId is required"))
		return
	}

	comments, err := handler.service.Thread(request.Context(), postID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, comments)
}

func (handler *Handler) queue(writer http.ResponseWriter, request *http.Request) {
	status := StatusPending
	if raw := requestutil.Query(request, "status"); raw != "" {
		parsed, err := ParseStatus(raw)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		status = parsed
	}

	params := pagination.FromRequest(request)
	comments, err := handler.service.Queue(request.Context(), authz.PrincipalFrom(request.Context()), status, params.Limit)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, comments)
}

/*
add posts a comment.

POST /api/v1/comments

Response:
  - 201: Comment
  - 400: Validation failure or unknown parent
  - 401: Not signed in
  - 404: Post missing or unpublished
*/
func (handler *Handler) add(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input addRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if err := validate.Struct(&input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	comment, err := handler.service.Add(request.Context(), principal, input.PostID, input.Content, input.ParentID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, comment)
}

func (handler *Handler) edit(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input editRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if err := validate.Struct(&input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	comment, err := handler.service.Edit(request.Context(), principal, requestutil.Param(request, "id"), input.Content)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, comment)
}

func (handler *Handler) delete(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Delete(request.Context(), principal, requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func (handler *Handler) like(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	comment, liked, err := handler.service.ToggleLike(request.Context(), principal, requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, likeResponse{Comment: comment, Liked: liked})
}

func (handler *Handler) setStatus(writer http.ResponseWriter, request *http.Request) {
	var input statusRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if err := validate.Struct(&input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	comment, err := handler.service.SetStatus(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"), Status(input.Status))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, comment)
}
