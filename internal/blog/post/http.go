// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	requestutil "github.com/taibuivan/dreamlog/internal/platform/request"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
	"github.com/taibuivan/dreamlog/pkg/convert"
	"github.com/taibuivan/dreamlog/pkg/pagination"
	"github.com/taibuivan/dreamlog/pkg/pointer"
)

// # Definitions & Constructors

// Handler implements the post and category endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /posts router.
//
// # Endpoints
//   - GET    /               : Paginated listing (?q=, ?category=, ?tag=, ?featured=, ?status=, ?mine=).
//   - GET    /slug/{slug}    : One post by slug.
//   - GET    /{id}           : One post.
//   - POST   /               : Create (canCreatePosts).
//   - PATCH  /{id}           : Update (author or canEditAllPosts).
//   - DELETE /{id}           : Delete (author or canDeleteAllPosts).
//   - POST   /{id}/publish   : Publish (canPublishPosts).
//   - POST   /{id}/unpublish : Back to draft (canPublishPosts).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.list)
	router.Get("/slug/{slug}", handler.getBySlug)
	router.Get("/{id}", handler.get)
	router.Post("/", handler.create)
	router.Patch("/{id}", handler.update)
	router.Delete("/{id}", handler.delete)
	router.Post("/{id}/publish", handler.publish)
	router.Post("/{id}/unpublish", handler.unpublish)

	return router
}

// CategoryRoutes returns the /categories router.
//
// # Endpoints
//   - GET    /       : Every category (public).
//   - POST   /       : Create (canManageCategories).
//   - DELETE /{slug} : Delete an unused category (canManageCategories).
func (handler *Handler) CategoryRoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.listCategories)
	router.Post("/", handler.createCategory)
	router.Delete("/{slug}", handler.deleteCategory)
	return router
}

// TagRoutes returns the /tags router.
//
// # Endpoints
//   - GET / : Distinct tags of published posts (public).
func (handler *Handler) TagRoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.listTags)
	return router
}

// # Request Payloads

type createRequest struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Excerpt  string   `json:"excerpt"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Date     string   `json:"date"`
	Status   string   `json:"status"`
	Featured bool     `json:"featured"`
}

type updateRequest struct {
	Title           *string   `json:"title"`
	Body            *string   `json:"body"`
	Excerpt         *string   `json:"excerpt"`
	Category        *string   `json:"category"`
	Tags            *[]string `json:"tags"`
	Date            *string   `json:"date"`
	Status          *string   `json:"status"`
	Featured        *bool     `json:"featured"`
	ExpectedVersion *int64    `json:"expectedVersion"`
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// # Post Handlers

/*
list returns one page of visible posts.

GET /api/v1/posts

Response:
  - 200: Paginated posts
  - 400: Unknown status
  - 401: ?mine=true without a session
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)
	query := ListQuery{
		Category: requestutil.Query(request, "category"),
		Tag:      requestutil.Query(request, "tag"),
		Search:   requestutil.Query(request, "q"),
		Mine:     convert.ToBool(requestutil.Query(request, "mine")),
		Offset:   params.Offset(),
		Limit:    params.Limit,
	}
	if raw := requestutil.Query(request, "status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		query.Status = status
	}
	if raw := requestutil.Query(request, "featured"); raw != "" {
		query.Featured = pointer.To(convert.ToBool(raw))
	}

	page, err := handler.service.List(request.Context(), authz.PrincipalFrom(request.Context()), query)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Paginated(writer, page.Posts, pagination.NewMeta(params.Page, params.Limit, page.Total))
}

func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	post, err := handler.service.Get(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, post)
}

func (handler *Handler) getBySlug(writer http.ResponseWriter, request *http.Request) {
	post, err := handler.service.GetBySlug(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "slug"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, post)
}

/*
create writes a new post.

POST /api/v1/posts

Response:
  - 201: Post
  - 400: Validation failure or unknown category
  - 401: Not signed in
  - 403: Missing canCreatePosts, or canPublishPosts for a non-draft status
*/
func (handler *Handler) create(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required("title", input.Title)
	validateContent(v, &input.Title, &input.Body, &input.Excerpt, &input.Tags)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	post := Input{
		Title:    input.Title,
		Body:     input.Body,
		Excerpt:  input.Excerpt,
		Category: input.Category,
		Tags:     input.Tags,
		Featured: input.Featured,
	}
	if input.Status != "" {
		if post.Status, err = ParseStatus(input.Status); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}
	if input.Date != "" {
		date, err := parseDate(input.Date)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		post.Date = &date
	}

	created, err := handler.service.Create(request.Context(), principal, post)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, created)
}

/*
update applies a partial update.

PATCH /api/v1/posts/{id}

Response:
  - 200: Post
  - 403: Not allowed to edit, or to change status or featured
  - 404: Post missing or invisible
  - 409: Stale expectedVersion
*/
func (handler *Handler) update(writer http.ResponseWriter, request *http.Request) {
	principal, err := authz.RequiredPrincipal(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	if input.Title != nil {
		v.Required("title", *input.Title)
	}
	tags := pointer.Val(input.Tags)
	validateContent(v, input.Title, input.Body, input.Excerpt, &tags)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	patch := Patch{
		Title:           input.Title,
		Body:            input.Body,
		Excerpt:         input.Excerpt,
		Category:        input.Category,
		Tags:            input.Tags,
		Featured:        input.Featured,
		ExpectedVersion: input.ExpectedVersion,
	}
	if input.Status != nil {
		status, err := ParseStatus(*input.Status)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		patch.Status = &status
	}
	if input.Date != nil {
		date, err := parseDate(*input.Date)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		patch.Date = &date
	}

	post, err := handler.service.Update(request.Context(), principal, requestutil.Param(request, "id"), patch)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, post)
}

func (handler *Handler) delete(writer http.ResponseWriter, request *http.Request) {
	if err := handler.service.Delete(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func (handler *Handler) publish(writer http.ResponseWriter, request *http.Request) {
	post, err := handler.service.Publish(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, post)
}

func (handler *Handler) unpublish(writer http.ResponseWriter, request *http.Request) {
	post, err := handler.service.Unpublish(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, post)
}

// # Category Handlers

func (handler *Handler) listCategories(writer http.ResponseWriter, request *http.Request) {
	categories, err := handler.service.ListCategories(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, categories)
}

func (handler *Handler) listTags(writer http.ResponseWriter, request *http.Request) {
	tags, err := handler.service.ListTags(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, tags)
}

func (handler *Handler) createCategory(writer http.ResponseWriter, request *http.Request) {
	var input categoryRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required("name", input.Name).
		MaxLen("name", input.Name, 60).
		MaxLen("description", input.Description, 300)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	category, err := handler.service.CreateCategory(request.Context(), authz.PrincipalFrom(request.Context()), CategoryInput{
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, category)
}

func (handler *Handler) deleteCategory(writer http.ResponseWriter, request *http.Request) {
	if err := handler.service.DeleteCategory(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "slug")); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// # Helpers

func validateContent(v *validate.Validator, title, body, excerpt *string, tags *[]string) {
	if title != nil {
		v.MaxLen("title", *title, MaxTitleLength)
	}
	if body != nil {
		v.MaxLen("body", *body, MaxBodyLength)
	}
	if excerpt != nil {
		v.MaxLen("excerpt", *excerpt, MaxExcerptLength)
	}
	if tags != nil {
		v.MaxItems("tags", len(*tags), MaxTags)
		for _, tag := range *tags {
			v.MaxLen("tags", tag, MaxTagLength)
		}
	}
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, apperr.ValidationError("Invalid date",
		apperr.FieldError{Field: "date", Message: "Must be YYYY-MM-DD or an RFC 3339 timestamp"})
}
