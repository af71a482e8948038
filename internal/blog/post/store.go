// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post

import "context"

// # Post Data Access

// Filter narrows a post listing at the store level. Zero fields match all.
type Filter struct {
	Status   Status
	Category string
	Tag      string
	Featured *bool
	AuthorID string
}

// PostRepository defines the data access contract for posts.
type PostRepository interface {

	/*
		List returns every post matching filter, newest first by date.

		Parameters:
		  - context: context.Context
		  - filter: Filter

		Returns:
		  - []*Post: Matching posts
		  - error: STORE_UNAVAILABLE
	*/
	List(context context.Context, filter Filter) ([]*Post, error)

	// FindByID returns the post or NOT_FOUND.
	FindByID(context context.Context, id string) (*Post, error)

	// FindBySlug returns the post carrying slug or NOT_FOUND.
	FindBySlug(context context.Context, slug string) (*Post, error)

	// SlugTaken reports whether another post than exceptID already uses slug.
	SlugTaken(context context.Context, slug, exceptID string) (bool, error)

	// Create persists a new post and fills in its version.
	Create(context context.Context, post *Post) error

	/*
		Update writes every mutable field of post, guarded by post.Version.

		Returns:
		  - error: CONFLICT when the post changed since it was read, NOT_FOUND
	*/
	Update(context context.Context, post *Post) error

	// Delete removes the post.
	Delete(context context.Context, id string) error

	// CountByCategory counts published posts filed under category.
	CountByCategory(context context.Context, category string) (int, error)

	// CountAnyByCategory counts posts of any status filed under category.
	CountAnyByCategory(context context.Context, category string) (int, error)
}

// # Category Data Access

// CategoryRepository defines the data access contract for categories.
type CategoryRepository interface {
	List(context context.Context) ([]*Category, error)
	Exists(context context.Context, slug string) (bool, error)
	Create(context context.Context, category *Category) error
	Delete(context context.Context, slug string) error
}
