// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package comment implements reader discussions under published posts.

Threads are one level deep: a reply to a reply is attached to the top-level
comment. Authors may edit and delete their own comments; principals holding
canModerateComments may do so for every comment and change its moderation
status.
*/
package comment

import (
	"slices"
	"time"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
)

const (
	MaxContentLength = 2000

	// likeAttempts bounds the read-modify-write retries of a like toggle.
	likeAttempts = 3
)

// # Status

// Status is the moderation state of a comment. Only approved comments are public.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusHidden   Status = "hidden"
)

// ParseStatus validates a client-supplied moderation status.
func ParseStatus(raw string) (Status, error) {
	switch status := Status(raw); status {
	case StatusApproved, StatusPending, StatusHidden:
		return status, nil
	}
	return "", apperr.ValidationError("Unknown status",
		apperr.FieldError{Field: "status", Message: "Must be approved, pending or hidden"})
}

// # Domain Entities

// Comment is a reader comment on a post.
type Comment struct {
	ID         string     `json:"id"`
	PostID     string     `json:"postId"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName"`
	Content    string     `json:"content"`
	ParentID   string     `json:"parentId,omitempty"`
	Status     Status     `json:"status"`
	Likes      int        `json:"likes"`
	LikedBy    []string   `json:"likedBy"`
	Edited     bool       `json:"edited"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Version    int64      `json:"version"`
	Replies    []*Comment `json:"replies,omitempty"`
}

// OwnerID implements authz.Resource.
func (comment *Comment) OwnerID() string { return comment.AuthorID }

// toggleLike flips principalID's like and reports whether it is now set.
func (comment *Comment) toggleLike(principalID string) bool {
	if index := slices.Index(comment.LikedBy, principalID); index >= 0 {
		comment.LikedBy = slices.Delete(comment.LikedBy, index, index+1)
		comment.Likes = max(0, comment.Likes-1)
		return false
	}
	comment.LikedBy = append(comment.LikedBy, principalID)
	comment.Likes++
	return true
}

// thread nests replies under their top-level comment, keeping input order.
// Replies whose parent is absent from comments are dropped.
func thread(comments []*Comment) []*Comment {
	roots := make(map[string]*Comment)
	var threaded []*Comment
	for _, comment := range comments {
		if comment.ParentID == "" {
			comment.Replies = nil
			roots[comment.ID] = comment
			threaded = append(threaded, comment)
		}
	}
	for _, comment := range comments {
		if parent, ok := roots[comment.ParentID]; ok && comment.ParentID != "" {
			parent.Replies = append(parent.Replies, comment)
		}
	}
	if threaded == nil {
		threaded = []*Comment{}
	}
	return threaded
}
