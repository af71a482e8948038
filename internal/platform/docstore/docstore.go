// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package docstore provides a minimal document database abstraction.

Documents live in named collections, are addressed by string IDs, and hold a
free-form set of JSON-compatible fields. The package offers point reads,
filtered and ordered queries, atomic multi-document transactions and optimistic
concurrency through per-document versions.

Backends:

  - [PostgresStore]: a single JSONB table managed by the migrations in data/migrations.
  - [MemoryStore]: an in-process store for development and tests.

Both backends normalize field values through JSON so that callers observe the
same types regardless of the backend: numbers become float64, arrays []any,
objects map[string]any and [time.Time] values fixed-width UTC strings.
*/
package docstore

import (
	"context"
	"errors"
	"iter"
	"time"
)

// # Errors

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrAlreadyExists is returned by Create when the ID is taken.
	ErrAlreadyExists = errors.New("docstore: document already exists")

	// ErrConflict is returned when a precondition fails or a transaction
	// observed data that changed before commit.
	ErrConflict = errors.New("docstore: precondition failed")

	// ErrInvalidQuery is returned for malformed field paths or operators.
	ErrInvalidQuery = errors.New("docstore: invalid query")
)

// # Data Model

// Fields is the content of a document.
type Fields map[string]any

// Document is a single stored record.
type Document struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Fields     Fields    `json:"fields"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Precondition guards a write against concurrent modification.
type Precondition struct {
	version int64
}

// IfVersion makes a write fail with [ErrConflict] unless the stored document
// is still at version.
func IfVersion(version int64) Precondition {
	return Precondition{version: version}
}

func checkPreconditions(current int64, preconds []Precondition) error {
	for _, precond := range preconds {
		if precond.version != current {
			return ErrConflict
		}
	}
	return nil
}

// # Contracts

// Reader is the read side of a document store.
type Reader interface {
	// Get returns a single document or [ErrNotFound].
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Query lazily yields the documents of collection matching q. The sequence
	// can be ranged over more than once; every pass re-runs the query.
	Query(ctx context.Context, collection string, q Query) iter.Seq2[*Document, error]

	// Count returns how many documents match q, ignoring Limit and Offset.
	Count(ctx context.Context, collection string, q Query) (int, error)
}

// Writer is the write side of a document store.
type Writer interface {
	// Create inserts a new document. An empty id generates a UUIDv7.
	Create(ctx context.Context, collection, id string, fields Fields) (*Document, error)

	// Set replaces the content of a document, creating it when absent.
	Set(ctx context.Context, collection, id string, fields Fields) (*Document, error)

	// Update merges fields into an existing document. A nil value removes the field.
	Update(ctx context.Context, collection, id string, fields Fields, preconds ...Precondition) (*Document, error)

	// Delete removes a document. Deleting a missing document returns [ErrNotFound].
	Delete(ctx context.Context, collection, id string, preconds ...Precondition) error
}

// Store combines [Reader] and [Writer].
type Store interface {
	Reader
	Writer
}

// Transactor is implemented by stores that can apply several writes atomically.
type Transactor interface {
	// RunInTransaction calls fn with a transactional view of the store. Writes made
	// through tx are committed together when fn returns nil and discarded otherwise.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// # Helpers

// Collect drains a query sequence into a slice.
func Collect(seq iter.Seq2[*Document, error]) ([]*Document, error) {
	var documents []*Document
	for document, err := range seq {
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return documents, nil
}

// First returns the first document yielded by seq, or [ErrNotFound].
func First(seq iter.Seq2[*Document, error]) (*Document, error) {
	for document, err := range seq {
		if err != nil {
			return nil, err
		}
		return document, nil
	}
	return nil, ErrNotFound
}
