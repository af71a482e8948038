// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post

import (
	"context"
	"errors"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Posts

type documentPostRepository struct {
	store docstore.Store
}

// NewPostRepository returns a [PostRepository] over a document store.
func NewPostRepository(store docstore.Store) PostRepository {
	return &documentPostRepository{store: store}
}

func (repository *documentPostRepository) List(context context.Context, filter Filter) ([]*Post, error) {
	p := schema.BlogPost
	query := docstore.Query{}
	if filter.Status != "" {
		query = query.Where(p.Status, docstore.OpEqual, string(filter.Status))
	}
	if filter.Category != "" {
		query = query.Where(p.Category, docstore.OpEqual, filter.Category)
	}
	if filter.Tag != "" {
		query = query.Where(p.Tags, docstore.OpArrayContains, filter.Tag)
	}
	if filter.Featured != nil {
		query = query.Where(p.Featured, docstore.OpEqual, *filter.Featured)
	}
	if filter.AuthorID != "" {
		query = query.Where(p.AuthorID, docstore.OpEqual, filter.AuthorID)
	}
	query = query.OrderBy(p.Date, true).OrderBy(p.CreatedAt, true)

	documents, err := docstore.Collect(repository.store.Query(context, p.Collection, query))
	if err != nil {
		return nil, dberr.Wrap(err, "Post")
	}

	posts := make([]*Post, len(documents))
	for i, document := range documents {
		posts[i] = postFromDocument(document)
	}
	return posts, nil
}

func (repository *documentPostRepository) FindByID(context context.Context, id string) (*Post, error) {
	document, err := repository.store.Get(context, schema.BlogPost.Collection, id)
	if err != nil {
		return nil, dberr.Wrap(err, "Post")
	}
	return postFromDocument(document), nil
}

func (repository *documentPostRepository) FindBySlug(context context.Context, slug string) (*Post, error) {
	query := docstore.Query{}.Where(schema.BlogPost.Slug, docstore.OpEqual, slug).Limit(1)
	document, err := docstore.First(repository.store.Query(context, schema.BlogPost.Collection, query))
	if err != nil {
		return nil, dberr.Wrap(err, "Post")
	}
	return postFromDocument(document), nil
}

func (repository *documentPostRepository) SlugTaken(context context.Context, slug, exceptID string) (bool, error) {
	query := docstore.Query{}.Where(schema.BlogPost.Slug, docstore.OpEqual, slug)
	for document, err := range repository.store.Query(context, schema.BlogPost.Collection, query) {
		if err != nil {
			return false, dberr.Wrap(err, "Post")
		}
		if document.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (repository *documentPostRepository) Create(context context.Context, post *Post) error {
	document, err := repository.store.Create(context, schema.BlogPost.Collection, post.ID, postFields(post))
	if err != nil {
		return dberr.Wrap(err, "Post")
	}
	post.Version = document.Version
	return nil
}

func (repository *documentPostRepository) Update(context context.Context, post *Post) error {
	document, err := repository.store.Update(context, schema.BlogPost.Collection, post.ID, postFields(post), docstore.IfVersion(post.Version))
	if err != nil {
		return dberr.Wrap(err, "Post")
	}
	post.Version = document.Version
	return nil
}

func (repository *documentPostRepository) Delete(context context.Context, id string) error {
	return dberr.Wrap(repository.store.Delete(context, schema.BlogPost.Collection, id), "Post")
}

func (repository *documentPostRepository) CountByCategory(context context.Context, category string) (int, error) {
	p := schema.BlogPost
	query := docstore.Query{}.
		Where(p.Category, docstore.OpEqual, category).
		Where(p.Status, docstore.OpEqual, string(StatusPublished))
	count, err := repository.store.Count(context, p.Collection, query)
	return count, dberr.Wrap(err, "Post")
}

func (repository *documentPostRepository) CountAnyByCategory(context context.Context, category string) (int, error) {
	query := docstore.Query{}.Where(schema.BlogPost.Category, docstore.OpEqual, category)
	count, err := repository.store.Count(context, schema.BlogPost.Collection, query)
	return count, dberr.Wrap(err, "Post")
}

// # Categories

type documentCategoryRepository struct {
	store docstore.Store
}

// NewCategoryRepository returns a [CategoryRepository] over a document store.
func NewCategoryRepository(store docstore.Store) CategoryRepository {
	return &documentCategoryRepository{store: store}
}

func (repository *documentCategoryRepository) List(context context.Context) ([]*Category, error) {
	c := schema.BlogCategory
	query := docstore.Query{}.OrderBy(c.Name, false)

	var categories []*Category
	for document, err := range repository.store.Query(context, c.Collection, query) {
		if err != nil {
			return nil, dberr.Wrap(err, "Category")
		}
		category := &Category{
			Slug:        document.ID,
			Name:        document.String(c.Name),
			Description: document.String(c.Description),
			CreatedAt:   document.CreatedAt,
			CreatedBy:   document.String(c.CreatedBy),
		}
		if createdAt, ok := document.Time(c.CreatedAt); ok {
			category.CreatedAt = createdAt
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func (repository *documentCategoryRepository) Exists(context context.Context, slug string) (bool, error) {
	_, err := repository.store.Get(context, schema.BlogCategory.Collection, slug)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dberr.Wrap(err, "Category")
	}
	return true, nil
}

func (repository *documentCategoryRepository) Create(context context.Context, category *Category) error {
	c := schema.BlogCategory
	_, err := repository.store.Create(context, c.Collection, category.Slug, docstore.Fields{
		c.Name:        category.Name,
		c.Description: category.Description,
		c.CreatedAt:   category.CreatedAt,
		c.CreatedBy:   category.CreatedBy,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return apperr.Conflict("Category already exists")
	}
	return dberr.Wrap(err, "Category")
}

func (repository *documentCategoryRepository) Delete(context context.Context, slug string) error {
	return dberr.Wrap(repository.store.Delete(context, schema.BlogCategory.Collection, slug), "Category")
}

// # Mappers

func postFields(post *Post) docstore.Fields {
	p := schema.BlogPost
	tags := make([]any, len(post.Tags))
	for i, tag := range post.Tags {
		tags[i] = tag
	}

	fields := docstore.Fields{
		p.Title:       post.Title,
		p.Slug:        post.Slug,
		p.Body:        post.Body,
		p.Excerpt:     post.Excerpt,
		p.Category:    post.Category,
		p.Tags:        tags,
		p.Date:        post.Date,
		p.Status:      string(post.Status),
		p.ReadTime:    post.ReadTime,
		p.Featured:    post.Featured,
		p.AuthorID:    post.AuthorID,
		p.AuthorName:  post.AuthorName,
		p.AuthorEmail: post.AuthorEmail,
		p.PublishedAt: post.PublishedAt,
		p.CreatedAt:   post.CreatedAt,
		p.UpdatedAt:   post.UpdatedAt,
	}
	return fields
}

func postFromDocument(document *docstore.Document) *Post {
	p := schema.BlogPost
	post := &Post{
		ID:          document.ID,
		Title:       document.String(p.Title),
		Slug:        document.String(p.Slug),
		Body:        document.String(p.Body),
		Excerpt:     document.String(p.Excerpt),
		Category:    document.String(p.Category),
		Tags:        document.Strings(p.Tags),
		Status:      Status(document.String(p.Status)),
		ReadTime:    int(document.Int(p.ReadTime)),
		Featured:    document.Bool(p.Featured),
		AuthorID:    document.String(p.AuthorID),
		AuthorName:  document.String(p.AuthorName),
		AuthorEmail: document.String(p.AuthorEmail),
		CreatedAt:   document.CreatedAt,
		UpdatedAt:   document.UpdatedAt,
		Version:     document.Version,
	}
	if post.Status == "" {
		post.Status = StatusDraft
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if date, ok := document.Time(p.Date); ok {
		post.Date = date
	}
	if publishedAt, ok := document.Time(p.PublishedAt); ok {
		post.PublishedAt = &publishedAt
	}
	if createdAt, ok := document.Time(p.CreatedAt); ok {
		post.CreatedAt = createdAt
	}
	if updatedAt, ok := document.Time(p.UpdatedAt); ok {
		post.UpdatedAt = updatedAt
	}
	return post
}
