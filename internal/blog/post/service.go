// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/pkg/slug"
	"github.com/taibuivan/dreamlog/pkg/uuid"
)

// maxSlugAttempts bounds the numeric suffixes tried for a colliding slug.
const maxSlugAttempts = 50

// # Collaborators

// CommentPurger removes the comments of a deleted post.
type CommentPurger interface {
	DeleteForPost(ctx context.Context, postID string) error
}

// CommentPurgerFunc adapts a function to [CommentPurger].
type CommentPurgerFunc func(ctx context.Context, postID string) error

// DeleteForPost calls fn.
func (fn CommentPurgerFunc) DeleteForPost(ctx context.Context, postID string) error {
	return fn(ctx, postID)
}

// # Service Layer

// Service implements the post and category use cases.
type Service struct {
	posts      PostRepository
	categories CategoryRepository
	access     *authz.Service
	comments   CommentPurger
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a [Service].
type Option func(*Service)

// WithCommentPurger deletes a post's comments together with the post.
func WithCommentPurger(purger CommentPurger) Option {
	return func(service *Service) { service.comments = purger }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// NewService constructs a [Service].
func NewService(posts PostRepository, categories CategoryRepository, access *authz.Service, logger *slog.Logger, options ...Option) *Service {
	service := &Service{
		posts:      posts,
		categories: categories,
		access:     access,
		logger:     logger,
		now:        time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// # Visibility

// visible reports whether principal may read post. principal may be nil.
func (service *Service) visible(principal *authz.Principal, post *Post) bool {
	if post.Status == StatusPublished {
		return true
	}
	if principal == nil || !principal.IsActive {
		return false
	}
	return post.AuthorID == principal.ID || service.access.Check(principal, authz.CanViewDrafts)
}

// # Queries

// ListQuery is a post listing request.
type ListQuery struct {
	// Status defaults to published. Other statuses only return posts visible to the caller.
	Status   Status
	Category string
	Tag      string
	Featured *bool
	Search   string

	// Mine lists the caller's own posts in every status.
	Mine bool

	Offset int
	Limit  int
}

// Page is one page of a post listing.
type Page struct {
	Posts []*Post
	Total int
}

/*
List returns one page of posts, newest first.

Parameters:
  - context: context.Context
  - principal: *authz.Principal (nil for anonymous readers)
  - query: ListQuery

Returns:
  - Page: Visible posts and their total
  - error: UNAUTHENTICATED when Mine is requested anonymously, STORE_UNAVAILABLE
*/
func (service *Service) List(context context.Context, principal *authz.Principal, query ListQuery) (Page, error) {
	filter := Filter{
		Status:   query.Status,
		Category: query.Category,
		Tag:      strings.ToLower(strings.TrimSpace(query.Tag)),
		Featured: query.Featured,
	}
	if query.Mine {
		if principal == nil {
			return Page{}, apperr.Unauthenticated("Authentication required")
		}
		filter.AuthorID = principal.ID
	} else if filter.Status == "" {
		filter.Status = StatusPublished
	}

	posts, err := service.posts.List(context, filter)
	if err != nil {
		return Page{}, err
	}

	term := strings.ToLower(strings.TrimSpace(query.Search))
	var matched []*Post
	for _, post := range posts {
		if service.visible(principal, post) && post.matches(term) {
			matched = append(matched, post)
		}
	}

	page := Page{Posts: []*Post{}, Total: len(matched)}
	if query.Offset < len(matched) {
		end := len(matched)
		if query.Limit > 0 {
			end = min(query.Offset+query.Limit, end)
		}
		page.Posts = matched[query.Offset:end]
	}
	return page, nil
}

// Get returns a post by ID. Posts the caller may not read are NOT_FOUND.
func (service *Service) Get(context context.Context, principal *authz.Principal, id string) (*Post, error) {
	post, err := service.posts.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if !service.visible(principal, post) {
		return nil, apperr.NotFound("Post")
	}
	return post, nil
}

// GetBySlug returns a post by slug under the same visibility rules as [Service.Get].
func (service *Service) GetBySlug(context context.Context, principal *authz.Principal, slug string) (*Post, error) {
	post, err := service.posts.FindBySlug(context, slug)
	if err != nil {
		return nil, err
	}
	if !service.visible(principal, post) {
		return nil, apperr.NotFound("Post")
	}
	return post, nil
}

// Published returns a post for readers. Only published posts are found;
// comment threads hang off these.
func (service *Service) Published(context context.Context, id string) (*Post, error) {
	return service.Get(context, nil, id)
}

// # Mutations

// Input carries the writable fields of a new post.
type Input struct {
	Title    string
	Body     string
	Excerpt  string
	Category string
	Tags     []string
	Date     *time.Time
	Status   Status
	Featured bool
}

/*
Create writes a new post authored by principal.

Posts start as drafts. Creating straight into pending or published, or as a
featured post, requires canPublishPosts.

Returns:
  - *Post: The stored post
  - error: UNAUTHENTICATED, FORBIDDEN, VALIDATION_ERROR (unknown category)
*/
func (service *Service) Create(context context.Context, principal *authz.Principal, input Input) (*Post, error) {
	if err := service.access.Authorize(principal, authz.CanCreatePosts); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = StatusDraft
	}
	if err := service.checkTransition(principal, StatusDraft, status, true); err != nil {
		return nil, err
	}
	if input.Featured && !service.access.Check(principal, authz.CanPublishPosts) {
		return nil, apperr.Forbidden("Featuring a post requires publishing rights")
	}

	category, err := service.resolveCategory(context, input.Category)
	if err != nil {
		return nil, err
	}

	now := service.now().UTC()
	post := &Post{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(input.Title),
		Body:        input.Body,
		Excerpt:     strings.TrimSpace(input.Excerpt),
		Category:    category,
		Tags:        NormalizeTags(input.Tags),
		Date:        now,
		Status:      status,
		ReadTime:    ReadTime(input.Body),
		Featured:    input.Featured,
		AuthorID:    principal.ID,
		AuthorName:  authorName(principal),
		AuthorEmail: principal.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.Date != nil {
		post.Date = input.Date.UTC()
	}
	if post.Excerpt == "" {
		post.Excerpt = Excerpt(post.Body)
	}
	if status == StatusPublished {
		post.PublishedAt = &now
	}

	post.Slug, err = service.uniqueSlug(context, post.Title, post.ID)
	if err != nil {
		return nil, err
	}

	if err := service.posts.Create(context, post); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "post_created",
		slog.String("post_id", post.ID),
		slog.String("author_id", post.AuthorID),
		slog.String("status", string(post.Status)),
	)
	return post, nil
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title    *string
	Body     *string
	Excerpt  *string
	Category *string
	Tags     *[]string
	Date     *time.Time
	Status   *Status
	Featured *bool

	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int64
}

/*
Update applies patch to the post.

The caller needs [authz.CanEditPost] on the post. Status and featured changes
are additionally checked against canPublishPosts.

Returns:
  - *Post: The updated post
  - error: NOT_FOUND, FORBIDDEN, CONFLICT (stale ExpectedVersion or concurrent write)
*/
func (service *Service) Update(context context.Context, principal *authz.Principal, id string, patch Patch) (*Post, error) {
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}

	post, err := service.Get(context, principal, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanEditPost(principal, post) {
		return nil, apperr.Forbidden("You cannot edit this post")
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != post.Version {
		return nil, apperr.Conflict("Post was modified concurrently")
	}

	if patch.Status != nil && *patch.Status != post.Status {
		if err := service.checkTransition(principal, post.Status, *patch.Status, false); err != nil {
			return nil, err
		}
		service.applyStatus(post, *patch.Status)
	}
	if patch.Featured != nil && *patch.Featured != post.Featured {
		if !service.access.Check(principal, authz.CanPublishPosts) {
			return nil, apperr.Forbidden("Featuring a post requires publishing rights")
		}
		post.Featured = *patch.Featured
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title != post.Title && post.Status != StatusPublished {
			post.Slug, err = service.uniqueSlug(context, title, post.ID)
			if err != nil {
				return nil, err
			}
		}
		post.Title = title
	}
	if patch.Body != nil {
		post.Body = *patch.Body
		post.ReadTime = ReadTime(post.Body)
	}
	if patch.Excerpt != nil {
		post.Excerpt = strings.TrimSpace(*patch.Excerpt)
	}
	if post.Excerpt == "" {
		post.Excerpt = Excerpt(post.Body)
	}
	if patch.Category != nil {
		if post.Category, err = service.resolveCategory(context, *patch.Category); err != nil {
			return nil, err
		}
	}
	if patch.Tags != nil {
		post.Tags = NormalizeTags(*patch.Tags)
	}
	if patch.Date != nil {
		post.Date = patch.Date.UTC()
	}

	post.UpdatedAt = service.now().UTC()
	if err := service.posts.Update(context, post); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "post_updated",
		slog.String("post_id", post.ID),
		slog.String("actor_id", principal.ID),
	)
	return post, nil
}

// Publish makes the post public. It requires canPublishPosts.
func (service *Service) Publish(context context.Context, principal *authz.Principal, id string) (*Post, error) {
	return service.setStatus(context, principal, id, StatusPublished, "post_published")
}

// Unpublish returns a published post to draft. It requires canPublishPosts.
func (service *Service) Unpublish(context context.Context, principal *authz.Principal, id string) (*Post, error) {
	return service.setStatus(context, principal, id, StatusDraft, "post_unpublished")
}

func (service *Service) setStatus(context context.Context, principal *authz.Principal, id string, status Status, event string) (*Post, error) {
	if err := service.access.Authorize(principal, authz.CanPublishPosts); err != nil {
		return nil, err
	}

	post, err := service.Get(context, principal, id)
	if err != nil {
		return nil, err
	}
	if post.Status == status {
		return post, nil
	}

	service.applyStatus(post, status)
	post.UpdatedAt = service.now().UTC()
	if err := service.posts.Update(context, post); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, event,
		slog.String("post_id", post.ID),
		slog.String("actor_id", principal.ID),
	)
	return post, nil
}

// Delete removes the post and its comments. The caller needs [authz.CanDeletePost].
func (service *Service) Delete(context context.Context, principal *authz.Principal, id string) error {
	if principal == nil {
		return apperr.Unauthenticated("Authentication required")
	}

	post, err := service.Get(context, principal, id)
	if err != nil {
		return err
	}
	if !authz.CanDeletePost(principal, post) {
		return apperr.Forbidden("You cannot delete this post")
	}

	if err := service.posts.Delete(context, id); err != nil {
		return err
	}

	if service.comments != nil {
		if err := service.comments.DeleteForPost(context, id); err != nil {
			service.logger.WarnContext(context, "post_comments_purge_failed",
				slog.String("post_id", id),
				slog.Any("error", err),
			)
		}
	}

	service.logger.InfoContext(context, "post_deleted",
		slog.String("post_id", id),
		slog.String("actor_id", principal.ID),
	)
	return nil
}

// # Helpers

// checkTransition enforces the status rules. creating allows any status the
// principal could reach from draft.
func (service *Service) checkTransition(principal *authz.Principal, from, to Status, creating bool) error {
	if from == to {
		return nil
	}
	withdraw := !creating && from == StatusPending && to == StatusDraft
	if withdraw || service.access.Check(principal, authz.CanPublishPosts) {
		return nil
	}
	return apperr.Forbidden("Changing the status to " + string(to) + " requires publishing rights")
}

func (service *Service) applyStatus(post *Post, status Status) {
	post.Status = status
	if status == StatusPublished && post.PublishedAt == nil {
		publishedAt := service.now().UTC()
		post.PublishedAt = &publishedAt
	}
}

// resolveCategory normalizes raw to a category slug and checks that it exists.
func (service *Service) resolveCategory(context context.Context, raw string) (string, error) {
	category := slug.From(raw)
	if category == "" || category == DefaultCategory {
		return DefaultCategory, nil
	}

	exists, err := service.categories.Exists(context, category)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", apperr.ValidationError("Unknown category",
			apperr.FieldError{Field: "category", Message: "Category " + category + " does not exist"})
	}
	return category, nil
}

// uniqueSlug derives a slug from title, suffixing -2, -3, ... on collision.
func (service *Service) uniqueSlug(context context.Context, title, postID string) (string, error) {
	base := slug.From(title)
	if base == "" {
		base = "untitled"
	}

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = base + "-" + strconv.Itoa(attempt)
		}

		taken, err := service.posts.SlugTaken(context, candidate, postID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	// Fall back to an ID fragment when every numeric suffix is taken.
	return base + "-" + postID[len(postID)-8:], nil
}

func authorName(principal *authz.Principal) string {
	if principal.DisplayName != "" {
		return principal.DisplayName
	}
	if local, _, ok := strings.Cut(principal.Email, "@"); ok && local != "" {
		return local
	}
	return "Anonymous"
}
