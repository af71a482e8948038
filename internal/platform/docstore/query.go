// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package docstore

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
	OpArrayContains  Op = "array-contains"
)

// fieldPattern restricts field names so they can be inlined into SQL safely.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Filter is a single predicate over a top-level field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts results by a top-level field. Documents missing the field sort last.
type Order struct {
	Field      string
	Descending bool
}

// Query describes a filtered, ordered and paginated read. The zero value
// matches every document of a collection.
//
//	docstore.Query{}.
//	    Where("status", docstore.OpEqual, "published").
//	    OrderBy("date", true).
//	    Limit(20)
type Query struct {
	Filters []Filter
	Orders  []Order
	Max     int
	Skip    int
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy returns a copy of q with an additional sort key.
func (q Query) OrderBy(field string, descending bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Descending: descending})
	return q
}

// Limit caps the number of results. Zero means unlimited.
func (q Query) Limit(n int) Query {
	q.Max = n
	return q
}

// Offset skips the first n results.
func (q Query) Offset(n int) Query {
	q.Skip = n
	return q
}

// validate checks field names and operators and normalizes filter operands.
func (q Query) validate() (Query, error) {
	prepared := Query{Orders: q.Orders, Max: q.Max, Skip: q.Skip}
	if q.Max < 0 || q.Skip < 0 {
		return Query{}, fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}

	for _, filter := range q.Filters {
		if err := validateField(filter.Field); err != nil {
			return Query{}, err
		}
		if !filter.Op.valid() {
			return Query{}, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, filter.Op)
		}
		value, err := normalizeValue(filter.Value)
		if err != nil {
			return Query{}, err
		}
		prepared.Filters = append(prepared.Filters, Filter{Field: filter.Field, Op: filter.Op, Value: value})
	}

	for _, order := range q.Orders {
		if err := validateField(order.Field); err != nil {
			return Query{}, err
		}
	}

	return prepared, nil
}

func (op Op) valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual, OpArrayContains:
		return true
	}
	return false
}

func validateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("%w: field name %q", ErrInvalidQuery, field)
	}
	return nil
}

// # In-Memory Evaluation

// matches reports whether fields satisfy every filter. Missing fields never match.
func (q Query) matches(fields Fields) bool {
	for _, filter := range q.Filters {
		value, ok := fields[filter.Field]
		if !ok || value == nil {
			return false
		}

		switch filter.Op {
		case OpEqual:
			if !reflect.DeepEqual(value, filter.Value) {
				return false
			}
		case OpNotEqual:
			if reflect.DeepEqual(value, filter.Value) {
				return false
			}
		case OpArrayContains:
			items, isArray := value.([]any)
			if !isArray || !containsValue(items, filter.Value) {
				return false
			}
		default:
			cmp, comparable := compareScalars(value, filter.Value)
			if !comparable || !filter.Op.accepts(cmp) {
				return false
			}
		}
	}
	return true
}

func (op Op) accepts(cmp int) bool {
	switch op {
	case OpLess:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	}
	return false
}

func containsValue(items []any, target any) bool {
	for _, item := range items {
		if reflect.DeepEqual(item, target) {
			return true
		}
	}
	return false
}

// compareScalars compares two values of the same JSON scalar type.
func compareScalars(a, b any) (int, bool) {
	switch left := a.(type) {
	case string:
		right, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(left, right), true
	case float64:
		right, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case left < right:
			return -1, true
		case left > right:
			return 1, true
		}
		return 0, true
	case bool:
		right, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case left == right:
			return 0, true
		case !left:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// typeRank mirrors the PostgreSQL jsonb ordering across types.
func typeRank(value any) int {
	switch value.(type) {
	case string:
		return 1
	case float64:
		return 2
	case bool:
		return 3
	case []any:
		return 4
	case map[string]any:
		return 5
	}
	return 0
}

// less orders two documents by the query's sort keys, falling back to ID.
func (q Query) less(a, b *Document) bool {
	for _, order := range q.Orders {
		left, leftOK := a.Fields[order.Field]
		right, rightOK := b.Fields[order.Field]
		leftOK = leftOK && left != nil
		rightOK = rightOK && right != nil

		switch {
		case !leftOK && !rightOK:
			continue
		case !leftOK:
			return false
		case !rightOK:
			return true
		}

		cmp, comparable := compareScalars(left, right)
		if !comparable {
			cmp = typeRank(left) - typeRank(right)
		}
		if cmp == 0 {
			continue
		}
		if order.Descending {
			return cmp > 0
		}
		return cmp < 0
	}
	return a.ID < b.ID
}
