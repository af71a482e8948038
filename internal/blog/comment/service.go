// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/pkg/uuid"
)

// # Collaborators

// PostFinder resolves the published post a thread belongs to.
type PostFinder interface {
	Published(ctx context.Context, id string) (*post.Post, error)
}

// # Service Layer

// Service implements the comment use cases.
type Service struct {
	comments Repository
	posts    PostFinder
	access   *authz.Service
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a [Service].
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// NewService constructs a [Service].
func NewService(comments Repository, posts PostFinder, access *authz.Service, logger *slog.Logger, options ...Option) *Service {
	service := &Service{
		comments: comments,
		posts:    posts,
		access:   access,
		logger:   logger,
		now:      time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// # Reads

/*
Thread returns the approved comments of a published post, oldest first, with
replies nested under their top-level comment.

Returns:
  - []*Comment: Top-level comments
  - error: NOT_FOUND when the post is not published
*/
func (service *Service) Thread(context context.Context, postID string) ([]*Comment, error) {
	if _, err := service.posts.Published(context, postID); err != nil {
		return nil, err
	}

	comments, err := service.comments.ListByPost(context, postID, StatusApproved)
	if err != nil {
		return nil, err
	}
	return thread(comments), nil
}

// Queue lists comments in status across every post, newest first. Moderators only.
func (service *Service) Queue(context context.Context, principal *authz.Principal, status Status, limit int) ([]*Comment, error) {
	if err := service.access.Authorize(principal, authz.CanModerateComments); err != nil {
		return nil, err
	}
	return service.comments.ListByStatus(context, status, limit)
}

// # Mutations

/*
Add posts a comment on a published post.

A reply to a reply is attached to the top-level comment of the thread.

Parameters:
  - principal: *authz.Principal (required)
  - postID: string
  - content: string
  - parentID: string (optional)

Returns:
  - *Comment
  - error: UNAUTHENTICATED, NOT_FOUND, VALIDATION_ERROR
*/
func (service *Service) Add(context context.Context, principal *authz.Principal, postID, content, parentID string) (*Comment, error) {
	if principal == nil {
		return nil, apperr.Unauthenticated("Sign in to comment")
	}
	if !principal.IsActive {
		return nil, apperr.Forbidden("Account is deactivated")
	}

	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := service.posts.Published(context, postID); err != nil {
		return nil, err
	}

	if parentID != "" {
		parent, err := service.comments.FindByID(context, parentID)
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return nil, apperr.ValidationError("Unknown parent comment",
				apperr.FieldError{Field: "parentId", Message: "Comment does not exist"})
		}
		if err != nil {
			return nil, err
		}
		if parent.PostID != postID {
			return nil, apperr.ValidationError("Parent comment belongs to another post",
				apperr.FieldError{Field: "parentId", Message: "Comment is not on this post"})
		}
		if parent.ParentID != "" {
			parentID = parent.ParentID
		}
	}

	timestamp := service.now().UTC()
	comment := &Comment{
		ID:         uuid.New(),
		PostID:     postID,
		AuthorID:   principal.ID,
		AuthorName: displayName(principal),
		Content:    content,
		ParentID:   parentID,
		Status:     StatusApproved,
		LikedBy:    []string{},
		CreatedAt:  timestamp,
		UpdatedAt:  timestamp,
	}
	if err := service.comments.Create(context, comment); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "comment_added",
		slog.String("comment_id", comment.ID),
		slog.String("post_id", postID),
		slog.String("author_id", principal.ID),
	)
	return comment, nil
}

// Edit replaces the content and marks the comment edited. The caller needs
// [authz.CanModifyComment].
func (service *Service) Edit(context context.Context, principal *authz.Principal, id, content string) (*Comment, error) {
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}

	comment, err := service.modifiable(context, principal, id)
	if err != nil {
		return nil, err
	}

	comment.Content = content
	comment.Edited = true
	comment.UpdatedAt = service.now().UTC()
	if err := service.comments.Update(context, comment); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "comment_edited",
		slog.String("comment_id", id),
		slog.String("actor_id", principal.ID),
	)
	return comment, nil
}

// Delete removes a comment and, for a top-level comment, its replies.
func (service *Service) Delete(context context.Context, principal *authz.Principal, id string) error {
	comment, err := service.modifiable(context, principal, id)
	if err != nil {
		return err
	}

	if err := service.comments.Delete(context, id); err != nil {
		return err
	}

	replies := 0
	if comment.ParentID == "" {
		if replies, err = service.comments.DeleteReplies(context, id); err != nil {
			return err
		}
	}

	service.logger.InfoContext(context, "comment_deleted",
		slog.String("comment_id", id),
		slog.String("actor_id", principal.ID),
		slog.Int("replies", replies),
	)
	return nil
}

/*
ToggleLike adds or removes principal's like.

The counter is a version-checked read-modify-write; a concurrent writer makes
the attempt start over, up to three times.

Returns:
  - *Comment: The comment after the toggle
  - bool: Whether principal now likes the comment
  - error: UNAUTHENTICATED, NOT_FOUND, CONFLICT
*/
func (service *Service) ToggleLike(context context.Context, principal *authz.Principal, id string) (*Comment, bool, error) {
	if principal == nil {
		return nil, false, apperr.Unauthenticated("Sign in to like comments")
	}

	var err error
	for attempt := 1; attempt <= likeAttempts; attempt++ {
		var comment *Comment
		comment, err = service.comments.FindByID(context, id)
		if err != nil {
			return nil, false, err
		}
		if comment.Status != StatusApproved {
			return nil, false, apperr.NotFound("Comment")
		}

		liked := comment.toggleLike(principal.ID)
		err = service.comments.Update(context, comment)
		if err == nil {
			return comment, liked, nil
		}
		if !apperr.HasCode(err, apperr.CodeConflict) {
			return nil, false, err
		}

		service.logger.DebugContext(context, "comment_like_retry",
			slog.String("comment_id", id),
			slog.Int("attempt", attempt),
		)
	}
	return nil, false, err
}

// SetStatus moves a comment between moderation states. Moderators only.
func (service *Service) SetStatus(context context.Context, principal *authz.Principal, id string, status Status) (*Comment, error) {
	if err := service.access.Authorize(principal, authz.CanModerateComments); err != nil {
		return nil, err
	}

	comment, err := service.comments.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if comment.Status == status {
		return comment, nil
	}

	from := comment.Status
	comment.Status = status
	comment.UpdatedAt = service.now().UTC()
	if err := service.comments.Update(context, comment); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "comment_moderated",
		slog.String("comment_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(status)),
		slog.String("actor_id", principal.ID),
	)
	return comment, nil
}

// DeleteForPost removes every comment of a deleted post.
func (service *Service) DeleteForPost(ctx context.Context, postID string) error {
	removed, err := service.comments.DeleteByPost(ctx, postID)
	if err != nil {
		return err
	}
	service.logger.InfoContext(ctx, "post_comments_purged",
		slog.String("post_id", postID),
		slog.Int("count", removed),
	)
	return nil
}

// # Helpers

func (service *Service) modifiable(context context.Context, principal *authz.Principal, id string) (*Comment, error) {
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}

	comment, err := service.comments.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanModifyComment(principal, comment) {
		return nil, apperr.Forbidden("You cannot modify this comment")
	}
	return comment, nil
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return "", apperr.ValidationError("Comment is empty",
			apperr.FieldError{Field: "content", Message: "Content is required"})
	case len([]rune(content)) > MaxContentLength:
		return "", apperr.ValidationError("Comment is too long",
			apperr.FieldError{Field: "content", Message: "Content must be at most 2000 characters"})
	}
	return content, nil
}

func displayName(principal *authz.Principal) string {
	if principal.DisplayName != "" {
		return principal.DisplayName
	}
	if local, _, ok := strings.Cut(principal.Email, "@"); ok && local != "" {
		return local
	}
	return "Anonymous"
}
