// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/pkg/uuid"
)

// # PostgreSQL Backend

// querier is the subset of pgxpool.Pool and pgx.Tx used by [PostgresStore].
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// beginner starts transactions. Satisfied by *pgxpool.Pool.
type beginner interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore keeps all collections in one JSONB table.
//
// Optimistic concurrency relies on the version column: every write bumps it
// and preconditions are enforced in the WHERE clause of the statement.
type PostgresStore struct {
	db beginner
}

// NewPostgresStore wraps a connection pool.
func NewPostgresStore(db beginner) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTransaction implements [Transactor] on a serializable transaction.
// Serialization failures are reported as [ErrConflict].
func (store *PostgresStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := store.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("docstore_begin_failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &postgresTxStore{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "docstore_commit_failed")
	}
	return nil
}

// The non-transactional store and the transaction view share every statement.

func (store *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return pgGet(ctx, store.db, collection, id)
}

func (store *PostgresStore) Query(ctx context.Context, collection string, q Query) iter.Seq2[*Document, error] {
	return pgQuery(ctx, store.db, collection, q)
}

func (store *PostgresStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	return pgCount(ctx, store.db, collection, q)
}

func (store *PostgresStore) Create(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	return pgCreate(ctx, store.db, collection, id, fields)
}

func (store *PostgresStore) Set(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	return pgSet(ctx, store.db, collection, id, fields)
}

func (store *PostgresStore) Update(ctx context.Context, collection, id string, fields Fields, preconds ...Precondition) (*Document, error) {
	return pgUpdate(ctx, store.db, collection, id, fields, preconds)
}

func (store *PostgresStore) Delete(ctx context.Context, collection, id string, preconds ...Precondition) error {
	return pgDelete(ctx, store.db, collection, id, preconds)
}

type postgresTxStore struct {
	q querier
}

func (store *postgresTxStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return pgGet(ctx, store.q, collection, id)
}

func (store *postgresTxStore) Query(ctx context.Context, collection string, q Query) iter.Seq2[*Document, error] {
	return pgQuery(ctx, store.q, collection, q)
}

func (store *postgresTxStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	return pgCount(ctx, store.q, collection, q)
}

func (store *postgresTxStore) Create(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	return pgCreate(ctx, store.q, collection, id, fields)
}

func (store *postgresTxStore) Set(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	return pgSet(ctx, store.q, collection, id, fields)
}

func (store *postgresTxStore) Update(ctx context.Context, collection, id string, fields Fields, preconds ...Precondition) (*Document, error) {
	return pgUpdate(ctx, store.q, collection, id, fields, preconds)
}

func (store *postgresTxStore) Delete(ctx context.Context, collection, id string, preconds ...Precondition) error {
	return pgDelete(ctx, store.q, collection, id, preconds)
}

// # Statements

var (
	table      = schema.DocstoreDocument.Table
	columnList = strings.Join(schema.DocstoreDocument.Columns(), ", ")
)

func pgGet(ctx context.Context, q querier, collection, id string) (*Document, error) {
	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		columnList, table, schema.DocstoreDocument.Collection, schema.DocstoreDocument.ID)

	document, err := scanDocument(q.QueryRow(ctx, sql, collection, id))
	if err != nil {
		return nil, classify(err, "docstore_get_failed")
	}
	return document, nil
}

func pgQuery(ctx context.Context, q querier, collection string, query Query) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		sql, args, err := buildSelect(collection, query, false)
		if err != nil {
			yield(nil, err)
			return
		}

		rows, err := q.Query(ctx, sql, args...)
		if err != nil {
			yield(nil, classify(err, "docstore_query_failed"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			document, err := scanDocument(rows)
			if err != nil {
				yield(nil, classify(err, "docstore_query_scan_failed"))
				return
			}
			if !yield(document, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, classify(err, "docstore_query_rows_failed"))
		}
	}
}

func pgCount(ctx context.Context, q querier, collection string, query Query) (int, error) {
	sql, args, err := buildSelect(collection, query, true)
	if err != nil {
		return 0, err
	}

	var total int
	if err := q.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, classify(err, "docstore_count_failed")
	}
	return total, nil
}

func pgCreate(ctx context.Context, q querier, collection, id string, fields Fields) (*Document, error) {
	payload, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.New()
	}

	sql := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3::jsonb) RETURNING %s`,
		table, schema.DocstoreDocument.Collection, schema.DocstoreDocument.ID, schema.DocstoreDocument.Fields, columnList)

	document, err := scanDocument(q.QueryRow(ctx, sql, collection, id, payload))
	if err != nil {
		return nil, classify(err, "docstore_create_failed")
	}
	return document, nil
}

func pgSet(ctx context.Context, q querier, collection, id string, fields Fields) (*Document, error) {
	payload, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	d := schema.DocstoreDocument
	sql := fmt.Sprintf(`INSERT INTO %s AS doc (%s, %s, %s) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (%s, %s) DO UPDATE
		SET %s = EXCLUDED.%s, %s = doc.%s + 1, %s = now()
		RETURNING %s`,
		table, d.Collection, d.ID, d.Fields,
		d.Collection, d.ID,
		d.Fields, d.Fields, d.Version, d.Version, d.UpdatedAt,
		columnList)

	document, err := scanDocument(q.QueryRow(ctx, sql, collection, id, payload))
	if err != nil {
		return nil, classify(err, "docstore_set_failed")
	}
	return document, nil
}

func pgUpdate(ctx context.Context, q querier, collection, id string, fields Fields, preconds []Precondition) (*Document, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return nil, err
	}

	merge := Fields{}
	var removed []string
	for key, value := range normalized {
		if value == nil {
			removed = append(removed, key)
			continue
		}
		merge[key] = value
	}

	payload, err := json.Marshal(merge)
	if err != nil {
		return nil, fmt.Errorf("docstore_update_marshal_failed: %w", err)
	}
	if removed == nil {
		removed = []string{}
	}

	sql, args := buildUpdate(collection, id, string(payload), removed, preconds)
	document, err := scanDocument(q.QueryRow(ctx, sql, args...))
	if err == nil {
		return document, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify(err, "docstore_update_failed")
	}

	// No row was updated: distinguish a missing document from a failed precondition.
	if _, getErr := pgGet(ctx, q, collection, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrConflict
}

func pgDelete(ctx context.Context, q querier, collection, id string, preconds []Precondition) error {
	d := schema.DocstoreDocument
	sql := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, table, d.Collection, d.ID)
	args := []any{collection, id}
	for _, precond := range preconds {
		args = append(args, precond.version)
		sql += fmt.Sprintf(" AND %s = $%d", d.Version, len(args))
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return classify(err, "docstore_delete_failed")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, getErr := pgGet(ctx, q, collection, id); getErr != nil {
		return getErr
	}
	return ErrConflict
}

// # Query Building

// buildSelect renders q as a parameterized SELECT over one collection.
func buildSelect(collection string, q Query, count bool) (string, []any, error) {
	prepared, err := q.validate()
	if err != nil {
		return "", nil, err
	}

	d := schema.DocstoreDocument
	args := []any{collection}
	conditions := []string{fmt.Sprintf("%s = $1", d.Collection)}

	for _, filter := range prepared.Filters {
		operand, err := json.Marshal(filter.Value)
		if err != nil {
			return "", nil, fmt.Errorf("docstore_filter_marshal_failed: %w", err)
		}

		path := fieldPath(filter.Field)
		switch filter.Op {
		case OpArrayContains:
			wrapped, err := json.Marshal([]any{filter.Value})
			if err != nil {
				return "", nil, fmt.Errorf("docstore_filter_marshal_failed: %w", err)
			}
			args = append(args, string(wrapped))
			conditions = append(conditions, fmt.Sprintf(
				"jsonb_typeof(%s) = 'array' AND %s @> $%d::jsonb", path, path, len(args)))
		case OpEqual:
			args = append(args, string(operand))
			conditions = append(conditions, fmt.Sprintf("%s = $%d::jsonb", path, len(args)))
		case OpNotEqual:
			args = append(args, string(operand))
			conditions = append(conditions, fmt.Sprintf(
				"%s <> $%d::jsonb AND jsonb_typeof(%s) <> 'null'", path, len(args), path))
		default:
			args = append(args, string(operand))
			n := len(args)
			conditions = append(conditions, fmt.Sprintf(
				"jsonb_typeof(%s) = jsonb_typeof($%d::jsonb) AND %s %s $%d::jsonb",
				path, n, path, string(filter.Op), n))
		}
	}

	where := strings.Join(conditions, " AND ")
	if count {
		return fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", table, where), args, nil
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "SELECT %s FROM %s WHERE %s", columnList, table, where)

	orders := make([]string, 0, len(prepared.Orders)+1)
	for _, order := range prepared.Orders {
		direction := "ASC"
		if order.Descending {
			direction = "DESC"
		}
		orders = append(orders, fmt.Sprintf("%s %s NULLS LAST", fieldPath(order.Field), direction))
	}
	orders = append(orders, d.ID+" ASC")
	builder.WriteString(" ORDER BY " + strings.Join(orders, ", "))

	if prepared.Max > 0 {
		builder.WriteString(" LIMIT " + strconv.Itoa(prepared.Max))
	}
	if prepared.Skip > 0 {
		builder.WriteString(" OFFSET " + strconv.Itoa(prepared.Skip))
	}

	return builder.String(), args, nil
}

// buildUpdate renders a merge of payload into one document, removing keys in removed.
func buildUpdate(collection, id, payload string, removed []string, preconds []Precondition) (string, []any) {
	d := schema.DocstoreDocument
	args := []any{collection, id, payload, removed}
	conditions := []string{fmt.Sprintf("%s = $1 AND %s = $2", d.Collection, d.ID)}
	for _, precond := range preconds {
		args = append(args, precond.version)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", d.Version, len(args)))
	}

	sql := fmt.Sprintf(`UPDATE %s SET %s = (%s - $4::text[]) || $3::jsonb, %s = %s + 1, %s = now() WHERE %s RETURNING %s`,
		table, d.Fields, d.Fields, d.Version, d.Version, d.UpdatedAt,
		strings.Join(conditions, " AND "), columnList)
	return sql, args
}

// fieldPath is safe to inline because field names are validated against fieldPattern.
func fieldPath(field string) string {
	return fmt.Sprintf("%s->'%s'", schema.DocstoreDocument.Fields, field)
}

// # Scanning & Errors

func encodeFields(fields Fields) (string, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("docstore_encode_failed: %w", err)
	}
	return string(payload), nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		document  Document
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&document.Collection, &document.ID, &raw, &document.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	document.Fields = Fields{}
	if err := json.Unmarshal(raw, &document.Fields); err != nil {
		return nil, fmt.Errorf("docstore_scan_fields_failed: %w", err)
	}
	document.CreatedAt = createdAt.UTC()
	document.UpdatedAt = updatedAt.UTC()
	return &document, nil
}

// classify maps driver errors onto the package sentinels.
func classify(err error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "40001", "40P01":
			return ErrConflict
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}
