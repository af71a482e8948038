// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package post manages blog posts and the categories they are filed under.

Every decision about who may read or change a post is taken by package authz;
this package only applies the outcome.

# Visibility

  - Published posts are public.
  - Drafts and pending posts are visible to their author and to principals
    holding canViewDrafts.
  - Invisible posts are reported as NOT_FOUND, never FORBIDDEN.

# Status Transitions

Moving a post to published or pending, and taking a published post back to
draft, require canPublishPosts. An author may withdraw a pending post to draft.
*/
package post

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
)

// # Limits

const (
	MaxTitleLength   = 200
	MaxExcerptLength = 500
	MaxBodyLength    = 100_000
	MaxTags          = 10
	MaxTagLength     = 30

	// WordsPerMinute drives the read time estimate.
	WordsPerMinute = 200

	// excerptRunes is the length of a generated excerpt.
	excerptRunes = 200

	// DefaultCategory files posts created without a category.
	DefaultCategory = "uncategorized"
)

// # Status

// Status is the editorial state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
)

// ParseStatus validates a client-supplied status.
func ParseStatus(raw string) (Status, error) {
	switch status := Status(raw); status {
	case StatusDraft, StatusPending, StatusPublished:
		return status, nil
	}
	return "", apperr.ValidationError("Unknown status",
		apperr.FieldError{Field: "status", Message: "Must be draft, pending or published"})
}

// # Domain Entities

// Post is a blog article.
type Post struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Body        string     `json:"body"`
	Excerpt     string     `json:"excerpt"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Date        time.Time  `json:"date"`
	Status      Status     `json:"status"`
	ReadTime    int        `json:"readTime"`
	Featured    bool       `json:"featured"`
	AuthorID    string     `json:"authorId"`
	AuthorName  string     `json:"authorName"`
	AuthorEmail string     `json:"authorEmail,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Version     int64      `json:"version"`
}

// OwnerID implements authz.Resource.
func (post *Post) OwnerID() string { return post.AuthorID }

// matches reports whether term occurs in the title, body, excerpt, tags or category.
func (post *Post) matches(term string) bool {
	if term == "" {
		return true
	}
	for _, field := range []string{post.Title, post.Body, post.Excerpt, post.Category} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	for _, tag := range post.Tags {
		if strings.Contains(tag, term) {
			return true
		}
	}
	return false
}

// Category groups posts. Categories are keyed by slug.
type Category struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PostCount   int       `json:"postCount"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy,omitempty"`
}

// # Derived Fields

// ReadTime estimates the minutes needed to read body, never less than one.
func ReadTime(body string) int {
	words := len(strings.Fields(body))
	return max(1, int(math.Round(float64(words)/WordsPerMinute)))
}

// Excerpt returns the first words of body, cut on a word boundary.
func Excerpt(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= excerptRunes {
		return body
	}

	cut := string([]rune(body)[:excerptRunes])
	if space := strings.LastIndex(cut, " "); space > 0 {
		cut = cut[:space]
	}
	return cut + "…"
}

// NormalizeTags lowercases, trims and de-duplicates tags, keeping input order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}
	return normalized
}
