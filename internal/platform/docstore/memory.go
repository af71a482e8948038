// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package docstore

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/taibuivan/dreamlog/pkg/uuid"
)

// # In-Memory Backend

// MemoryStore is a process-local [Store] and [Transactor].
//
// # Concurrency
//
// All operations are safe for concurrent use. Transactions are optimistic: the
// versions of every document read inside a transaction are validated at commit
// and a mismatch aborts the whole transaction with [ErrConflict]. A collection
// scanned by a query or count must also be unchanged at commit, so a document
// inserted concurrently into a scanned collection aborts the transaction too.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Document
	generations map[string]uint64
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*Document),
		generations: make(map[string]uint64),
	}
}

// docKey addresses a document across collections.
type docKey struct {
	collection string
	id         string
}

// memoryState is the storage view shared by the store and its transactions.
type memoryState interface {
	lookup(collection, id string) (*Document, bool)
	snapshot(collection string) []*Document
	put(document *Document)
	remove(collection, id string)
}

func (store *MemoryStore) lookup(collection, id string) (*Document, bool) {
	document, ok := store.collections[collection][id]
	return document, ok
}

func (store *MemoryStore) snapshot(collection string) []*Document {
	documents := make([]*Document, 0, len(store.collections[collection]))
	for _, document := range store.collections[collection] {
		documents = append(documents, document)
	}
	return documents
}

func (store *MemoryStore) put(document *Document) {
	bucket, ok := store.collections[document.Collection]
	if !ok {
		bucket = make(map[string]*Document)
		store.collections[document.Collection] = bucket
	}
	bucket[document.ID] = document
	store.generations[document.Collection]++
}

func (store *MemoryStore) remove(collection, id string) {
	delete(store.collections[collection], id)
	store.generations[collection]++
}

// # Store Implementation

// Get implements [Reader].
func (store *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	return memoryGet(store, collection, id)
}

// Query implements [Reader].
func (store *MemoryStore) Query(ctx context.Context, collection string, q Query) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		store.mu.RLock()
		documents, err := memoryQuery(ctx, store, collection, q)
		store.mu.RUnlock()
		yieldAll(ctx, documents, err, yield)
	}
}

// Count implements [Reader].
func (store *MemoryStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	documents, err := memoryQuery(ctx, store, collection, q.Limit(0).Offset(0))
	return len(documents), err
}

// Create implements [Writer].
func (store *MemoryStore) Create(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return memoryCreate(store, collection, id, fields)
}

// Set implements [Writer].
func (store *MemoryStore) Set(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return memorySet(store, collection, id, fields)
}

// Update implements [Writer].
func (store *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields, preconds ...Precondition) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return memoryUpdate(store, collection, id, fields, preconds)
}

// Delete implements [Writer].
func (store *MemoryStore) Delete(ctx context.Context, collection, id string, preconds ...Precondition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return memoryDelete(store, collection, id, preconds)
}

// RunInTransaction implements [Transactor].
func (store *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx := &memoryTx{
		parent: store,
		reads:  make(map[docKey]int64),
		scans:  make(map[string]uint64),
		writes: make(map[docKey]*Document),
	}

	if err := fn(ctx, &memoryTxStore{tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return tx.commit()
}

// # Transactions

type memoryTx struct {
	parent *MemoryStore
	mu     sync.Mutex
	reads  map[docKey]int64
	scans  map[string]uint64
	writes map[docKey]*Document
	order  []docKey
}

func (tx *memoryTx) record(key docKey, document *Document, found bool) {
	if _, seen := tx.reads[key]; seen {
		return
	}
	if found {
		tx.reads[key] = document.Version
	} else {
		tx.reads[key] = 0
	}
}

func (tx *memoryTx) lookup(collection, id string) (*Document, bool) {
	key := docKey{collection, id}
	if written, ok := tx.writes[key]; ok {
		return written, written != nil
	}

	tx.parent.mu.RLock()
	document, found := tx.parent.lookup(collection, id)
	tx.parent.mu.RUnlock()

	tx.record(key, document, found)
	return document, found
}

func (tx *memoryTx) snapshot(collection string) []*Document {
	tx.parent.mu.RLock()
	base := tx.parent.snapshot(collection)
	generation := tx.parent.generations[collection]
	tx.parent.mu.RUnlock()

	if _, seen := tx.scans[collection]; !seen {
		tx.scans[collection] = generation
	}

	documents := make([]*Document, 0, len(base))
	for _, document := range base {
		key := docKey{collection, document.ID}
		if _, overwritten := tx.writes[key]; overwritten {
			continue
		}
		tx.record(key, document, true)
		documents = append(documents, document)
	}

	for _, key := range tx.order {
		if key.collection != collection {
			continue
		}
		if written := tx.writes[key]; written != nil {
			documents = append(documents, written)
		}
	}
	return documents
}

func (tx *memoryTx) put(document *Document) {
	key := docKey{document.Collection, document.ID}
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = document
}

func (tx *memoryTx) remove(collection, id string) {
	key := docKey{collection, id}
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = nil
}

func (tx *memoryTx) commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.parent.mu.Lock()
	defer tx.parent.mu.Unlock()

	for collection, generation := range tx.scans {
		if tx.parent.generations[collection] != generation {
			return ErrConflict
		}
	}

	for key, version := range tx.reads {
		current, found := tx.parent.lookup(key.collection, key.id)
		switch {
		case found && current.Version != version:
			return ErrConflict
		case !found && version != 0:
			return ErrConflict
		}
	}

	for _, key := range tx.order {
		if written := tx.writes[key]; written != nil {
			tx.parent.put(written)
		} else {
			tx.parent.remove(key.collection, key.id)
		}
	}
	return nil
}

// memoryTxStore exposes a transaction as a [Store].
type memoryTxStore struct {
	tx *memoryTx
}

func (store *memoryTxStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.tx.mu.Lock()
	defer store.tx.mu.Unlock()
	return memoryGet(store.tx, collection, id)
}

func (store *memoryTxStore) Query(ctx context.Context, collection string, q Query) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		store.tx.mu.Lock()
		documents, err := memoryQuery(ctx, store.tx, collection, q)
		store.tx.mu.Unlock()
		yieldAll(ctx, documents, err, yield)
	}
}

func (store *memoryTxStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	store.tx.mu.Lock()
	defer store.tx.mu.Unlock()
	documents, err := memoryQuery(ctx, store.tx, collection, q.Limit(0).Offset(0))
	return len(documents), err
}

func (store *memoryTxStore) Create(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.tx.mu.Lock()
	defer store.tx.mu.Unlock()
	return memoryCreate(store.tx, collection, id, fields)
}

func (store *memoryTxStore) Set(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.tx.mu.Lock()
	defer store.tx.mu.Unlock()
	return memorySet(store.tx, collection, id, fields)
}

func (store *memoryTxStore) Update(ctx context.Context, collection, id string, fields Fields, preconds ...Precondition) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.tx.mu.Lock()
	defer store.tx.mu.Unlock()
	return memoryUpdate(store.tx, collection, id, fields, preconds)
}

func (store *memoryTxStore) Delete(ctx context.Context, collection, id string, preconds ...Precondition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.tx.mu.Lock()
	defer store.tx.mu.Unlock()
	return memoryDelete(store.tx, collection, id, preconds)
}

// # Shared Operations

func memoryGet(state memoryState, collection, id string) (*Document, error) {
	document, found := state.lookup(collection, id)
	if !found {
		return nil, ErrNotFound
	}
	return document.clone(), nil
}

func memoryQuery(ctx context.Context, state memoryState, collection string, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := q.validate()
	if err != nil {
		return nil, err
	}

	var matched []*Document
	for _, document := range state.snapshot(collection) {
		if prepared.matches(document.Fields) {
			matched = append(matched, document)
		}
	}

	slices.SortFunc(matched, func(a, b *Document) int {
		switch {
		case prepared.less(a, b):
			return -1
		case prepared.less(b, a):
			return 1
		}
		return 0
	})

	if prepared.Skip > 0 {
		if prepared.Skip >= len(matched) {
			return nil, nil
		}
		matched = matched[prepared.Skip:]
	}
	if prepared.Max > 0 && len(matched) > prepared.Max {
		matched = matched[:prepared.Max]
	}

	results := make([]*Document, len(matched))
	for i, document := range matched {
		results[i] = document.clone()
	}
	return results, nil
}

func memoryCreate(state memoryState, collection, id string, fields Fields) (*Document, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.New()
	}
	if _, found := state.lookup(collection, id); found {
		return nil, ErrAlreadyExists
	}

	now := time.Now().UTC()
	document := &Document{
		Collection: collection,
		ID:         id,
		Fields:     normalized,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	state.put(document)
	return document.clone(), nil
}

func memorySet(state memoryState, collection, id string, fields Fields) (*Document, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	document := &Document{
		Collection: collection,
		ID:         id,
		Fields:     normalized,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, found := state.lookup(collection, id); found {
		document.Version = existing.Version + 1
		document.CreatedAt = existing.CreatedAt
	}

	state.put(document)
	return document.clone(), nil
}

func memoryUpdate(state memoryState, collection, id string, fields Fields, preconds []Precondition) (*Document, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return nil, err
	}

	existing, found := state.lookup(collection, id)
	if !found {
		return nil, ErrNotFound
	}
	if err := checkPreconditions(existing.Version, preconds); err != nil {
		return nil, err
	}

	updated := existing.clone()
	for key, value := range normalized {
		if value == nil {
			delete(updated.Fields, key)
			continue
		}
		updated.Fields[key] = value
	}
	updated.Version = existing.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	state.put(updated)
	return updated.clone(), nil
}

func memoryDelete(state memoryState, collection, id string, preconds []Precondition) error {
	existing, found := state.lookup(collection, id)
	if !found {
		return ErrNotFound
	}
	if err := checkPreconditions(existing.Version, preconds); err != nil {
		return err
	}
	state.remove(collection, id)
	return nil
}

func yieldAll(ctx context.Context, documents []*Document, err error, yield func(*Document, error) bool) {
	if err != nil {
		yield(nil, err)
		return
	}
	for _, document := range documents {
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(nil, ctxErr)
			return
		}
		if !yield(document, nil) {
			return
		}
	}
}
