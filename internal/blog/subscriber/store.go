// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package subscriber

import (
	"context"
	"errors"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/dberr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Subscriber Data Access

// Repository defines the data access contract for subscribers.
type Repository interface {

	// Create stores subscriber keyed by its email, or fails with CONFLICT.
	Create(context context.Context, subscriber *Subscriber) error

	// List returns every subscriber, newest first.
	List(context context.Context) ([]*Subscriber, error)

	Delete(context context.Context, email string) error
}

type documentRepository struct {
	store docstore.Store
}

// NewRepository returns a [Repository] over a document store.
func NewRepository(store docstore.Store) Repository {
	return &documentRepository{store: store}
}

func (repository *documentRepository) Create(context context.Context, subscriber *Subscriber) error {
	s := schema.BlogSubscriber
	_, err := repository.store.Create(context, s.Collection, subscriber.Email, docstore.Fields{
		s.Email:        subscriber.Email,
		s.Source:       subscriber.Source,
		s.SubscribedAt: subscriber.SubscribedAt,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return apperr.Conflict("Email is already subscribed")
	}
	return dberr.Wrap(err, "Subscriber")
}

func (repository *documentRepository) List(context context.Context) ([]*Subscriber, error) {
	s := schema.BlogSubscriber
	query := docstore.Query{}.OrderBy(s.SubscribedAt, true)

	documents, err := docstore.Collect(repository.store.Query(context, s.Collection, query))
	if err != nil {
		return nil, dberr.Wrap(err, "Subscriber")
	}

	subscribers := make([]*Subscriber, len(documents))
	for i, document := range documents {
		subscribers[i] = &Subscriber{
			Email:  document.String(s.Email),
			Source: document.String(s.Source),
		}
		if at, ok := document.Time(s.SubscribedAt); ok {
			subscribers[i].SubscribedAt = at
		}
	}
	return subscribers, nil
}

func (repository *documentRepository) Delete(context context.Context, email string) error {
	return dberr.Wrap(repository.store.Delete(context, schema.BlogSubscriber.Collection, email), "Subscriber")
}
