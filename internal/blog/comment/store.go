// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"

	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Comment Data Access

// Repository defines the data access contract for comments.
type Repository interface {

	/*
		ListByPost returns the comments of a post, oldest first.

		Parameters:
		  - context: context.Context
		  - postID: string
		  - status: Status ("" for every status)

		Returns:
		  - []*Comment
		  - error: STORE_UNAVAILABLE
	*/
	ListByPost(context context.Context, postID string, status Status) ([]*Comment, error)

	// ListByStatus returns comments of every post in status, newest first.
	ListByStatus(context context.Context, status Status, limit int) ([]*Comment, error)

	FindByID(context context.Context, id string) (*Comment, error)
	Create(context context.Context, comment *Comment) error

	// Update writes every mutable field, guarded by comment.Version.
	Update(context context.Context, comment *Comment) error

	Delete(context context.Context, id string) error

	// DeleteReplies removes every reply of parentID and returns how many were removed.
	DeleteReplies(context context.Context, parentID string) (int, error)

	// DeleteByPost removes every comment of postID and returns how many were removed.
	DeleteByPost(context context.Context, postID string) (int, error)
}

type documentRepository struct {
	store docstore.Store
}

// NewRepository returns a [Repository] over a document store.
func NewRepository(store docstore.Store) Repository {
	return &documentRepository{store: store}
}

func (repository *documentRepository) ListByPost(context context.Context, postID string, status Status) ([]*Comment, error) {
	c := schema.BlogComment
	query := docstore.Query{}.Where(c.PostID, docstore.OpEqual, postID)
	if status != "" {
		query = query.Where(c.Status, docstore.OpEqual, string(status))
	}
	return repository.list(context, query.OrderBy(c.CreatedAt, false))
}

func (repository *documentRepository) ListByStatus(context context.Context, status Status, limit int) ([]*Comment, error) {
	c := schema.BlogComment
	query := docstore.Query{}.
		Where(c.Status, docstore.OpEqual, string(status)).
		OrderBy(c.CreatedAt, true).
		Limit(limit)
	return repository.list(context, query)
}

func (repository *documentRepository) list(context context.Context, query docstore.Query) ([]*Comment, error) {
	documents, err := docstore.Collect(repository.store.Query(context, schema.BlogComment.Collection, query))
	if err != nil {
		return nil, dberr.Wrap(err, "Comment")
	}
	comments := make([]*Comment, len(documents))
	for i, document := range documents {
		comments[i] = commentFromDocument(document)
	}
	return comments, nil
}

func (repository *documentRepository) FindByID(context context.Context, id string) (*Comment, error) {
	document, err := repository.store.Get(context, schema.BlogComment.Collection, id)
	if err != nil {
		return nil, dberr.Wrap(err, "Comment")
	}
	return commentFromDocument(document), nil
}

func (repository *documentRepository) Create(context context.Context, comment *Comment) error {
	document, err := repository.store.Create(context, schema.BlogComment.Collection, comment.ID, commentFields(comment))
	if err != nil {
		return dberr.Wrap(err, "Comment")
	}
	comment.Version = document.Version
	return nil
}

func (repository *documentRepository) Update(context context.Context, comment *Comment) error {
	document, err := repository.store.Update(context, schema.BlogComment.Collection, comment.ID, commentFields(comment), docstore.IfVersion(comment.Version))
	if err != nil {
		return dberr.Wrap(err, "Comment")
	}
	comment.Version = document.Version
	return nil
}

func (repository *documentRepository) Delete(context context.Context, id string) error {
	return dberr.Wrap(repository.store.Delete(context, schema.BlogComment.Collection, id), "Comment")
}

func (repository *documentRepository) DeleteReplies(context context.Context, parentID string) (int, error) {
	return repository.deleteWhere(context, schema.BlogComment.ParentID, parentID)
}

func (repository *documentRepository) DeleteByPost(context context.Context, postID string) (int, error) {
	return repository.deleteWhere(context, schema.BlogComment.PostID, postID)
}

// deleteWhere removes the matches of field == value, in one transaction when
// the store supports it.
func (repository *documentRepository) deleteWhere(ctx context.Context, field, value string) (int, error) {
	collection := schema.BlogComment.Collection
	query := docstore.Query{}.Where(field, docstore.OpEqual, value)

	removed := 0
	purge := func(ctx context.Context, store docstore.Store) error {
		removed = 0
		documents, err := docstore.Collect(store.Query(ctx, collection, query))
		if err != nil {
			return err
		}
		for _, document := range documents {
			if err := store.Delete(ctx, collection, document.ID); err != nil && !dberr.IsNotFound(err) {
				return err
			}
			removed++
		}
		return nil
	}

	var err error
	if transactor, ok := repository.store.(docstore.Transactor); ok {
		err = transactor.RunInTransaction(ctx, purge)
	} else {
		err = purge(ctx, repository.store)
	}
	if err != nil {
		return 0, dberr.Wrap(err, "Comment")
	}
	return removed, nil
}

// # Mappers

func commentFields(comment *Comment) docstore.Fields {
	c := schema.BlogComment
	likedBy := make([]any, len(comment.LikedBy))
	for i, id := range comment.LikedBy {
		likedBy[i] = id
	}

	fields := docstore.Fields{
		c.PostID:     comment.PostID,
		c.AuthorID:   comment.AuthorID,
		c.AuthorName: comment.AuthorName,
		c.Content:    comment.Content,
		c.Status:     string(comment.Status),
		c.Likes:      comment.Likes,
		c.LikedBy:    likedBy,
		c.Edited:     comment.Edited,
		c.CreatedAt:  comment.CreatedAt,
		c.UpdatedAt:  comment.UpdatedAt,
	}
	if comment.ParentID != "" {
		fields[c.ParentID] = comment.ParentID
	}
	return fields
}

func commentFromDocument(document *docstore.Document) *Comment {
	c := schema.BlogComment
	comment := &Comment{
		ID:         document.ID,
		PostID:     document.String(c.PostID),
		AuthorID:   document.String(c.AuthorID),
		AuthorName: document.String(c.AuthorName),
		Content:    document.String(c.Content),
		ParentID:   document.String(c.ParentID),
		Status:     Status(document.String(c.Status)),
		Likes:      int(document.Int(c.Likes)),
		LikedBy:    document.Strings(c.LikedBy),
		Edited:     document.Bool(c.Edited),
		CreatedAt:  document.CreatedAt,
		UpdatedAt:  document.UpdatedAt,
		Version:    document.Version,
	}
	if comment.Status == "" {
		comment.Status = StatusApproved
	}
	if comment.LikedBy == nil {
		comment.LikedBy = []string{}
	}
	if createdAt, ok := document.Time(c.CreatedAt); ok {
		comment.CreatedAt = createdAt
	}
	if updatedAt, ok := document.Time(c.UpdatedAt); ok {
		comment.UpdatedAt = updatedAt
	}
	return comment
}
