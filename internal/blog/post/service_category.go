// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post

import (
	"context"
	"log/slog"
	"strings"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/pkg/slug"
)

// # Categories

// ListCategories returns every category with its published post count.
func (service *Service) ListCategories(context context.Context) ([]*Category, error) {
	categories, err := service.categories.List(context)
	if err != nil {
		return nil, err
	}

	for _, category := range categories {
		if category.PostCount, err = service.posts.CountByCategory(context, category.Slug); err != nil {
			return nil, err
		}
	}
	if categories == nil {
		categories = []*Category{}
	}
	return categories, nil
}

// CategoryInput carries the fields of a new category.
type CategoryInput struct {
	Name        string
	Description string
}

/*
CreateCategory adds a category keyed by the slug of its name.

Returns:
  - *Category: The stored category
  - error: FORBIDDEN without canManageCategories, CONFLICT when the slug exists
*/
func (service *Service) CreateCategory(context context.Context, principal *authz.Principal, input CategoryInput) (*Category, error) {
	if err := service.access.Authorize(principal, authz.CanManageCategories); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	key := slug.From(name)
	if key == "" {
		return nil, apperr.ValidationError("Invalid category name",
			apperr.FieldError{Field: "name", Message: "Must contain at least one letter or digit"})
	}
	if key == DefaultCategory {
		return nil, apperr.Conflict("Category already exists")
	}

	category := &Category{
		Slug:        key,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   service.now().UTC(),
		CreatedBy:   principal.ID,
	}
	if err := service.categories.Create(context, category); err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "category_created",
		slog.String("category", key),
		slog.String("actor_id", principal.ID),
	)
	return category, nil
}

// DeleteCategory removes an unused category. Categories still holding posts
// are a CONFLICT.
func (service *Service) DeleteCategory(context context.Context, principal *authz.Principal, key string) error {
	if err := service.access.Authorize(principal, authz.CanManageCategories); err != nil {
		return err
	}

	count, err := service.posts.CountAnyByCategory(context, key)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("Category is still used by posts")
	}

	if err := service.categories.Delete(context, key); err != nil {
		return err
	}

	service.logger.InfoContext(context, "category_deleted",
		slog.String("category", key),
		slog.String("actor_id", principal.ID),
	)
	return nil
}
