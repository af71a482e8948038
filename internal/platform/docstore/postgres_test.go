// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestBuildSelect verifies the SQL rendered for each operator.
*/
func TestBuildSelect(t *testing.T) {
	const columns = "collection, id, fields, version, createdat, updatedat"

	tests := []struct {
		name     string
		query    Query
		count    bool
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "whole collection",
			query:    Query{},
			wantSQL:  "SELECT " + columns + " FROM docstore.documents WHERE collection = $1 ORDER BY id ASC",
			wantArgs: []any{"posts"},
		},
		{
			name:  "equality ordering and pagination",
			query: Query{}.Where("status", OpEqual, "published").OrderBy("date", true).Limit(10).Offset(20),
			wantSQL: "SELECT " + columns + " FROM docstore.documents WHERE collection = $1" +
				" AND fields->'status' = $2::jsonb" +
				" ORDER BY fields->'date' DESC NULLS LAST, id ASC LIMIT 10 OFFSET 20",
			wantArgs: []any{"posts", `"published"`},
		},
		{
			name:  "array contains",
			query: Query{}.Where("tags", OpArrayContains, "go"),
			wantSQL: "SELECT " + columns + " FROM docstore.documents WHERE collection = $1" +
				" AND jsonb_typeof(fields->'tags') = 'array' AND fields->'tags' @> $2::jsonb ORDER BY id ASC",
			wantArgs: []any{"posts", `["go"]`},
		},
		{
			name:  "range guards the json type",
			query: Query{}.Where("readTime", OpLess, 5),
			wantSQL: "SELECT " + columns + " FROM docstore.documents WHERE collection = $1" +
				" AND jsonb_typeof(fields->'readTime') = jsonb_typeof($2::jsonb) AND fields->'readTime' < $2::jsonb ORDER BY id ASC",
			wantArgs: []any{"posts", "5"},
		},
		{
			name:     "count ignores ordering",
			query:    Query{}.Where("featured", OpNotEqual, true).OrderBy("date", false).Limit(3),
			count:    true,
			wantSQL:  "SELECT count(*) FROM docstore.documents WHERE collection = $1 AND fields->'featured' <> $2::jsonb AND jsonb_typeof(fields->'featured') <> 'null'",
			wantArgs: []any{"posts", "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildSelect("posts", tt.query, tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

/*
TestBuildSelect_RejectsUnsafeFields ensures field names are never inlined unchecked.
*/
func TestBuildSelect_RejectsUnsafeFields(t *testing.T) {
	_, _, err := buildSelect("posts", Query{}.OrderBy("date' DESC; --", false), false)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, _, err = buildSelect("posts", Query{}.Where("title", Op("LIKE"), "x"), false)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

/*
TestBuildUpdate verifies merge and removal with version preconditions.
*/
func TestBuildUpdate(t *testing.T) {
	sql, args := buildUpdate("users", "u1", `{"role":"editor"}`, []string{"permissions"}, []Precondition{IfVersion(4)})

	assert.Equal(t,
		"UPDATE docstore.documents SET fields = (fields - $4::text[]) || $3::jsonb, version = version + 1, updatedat = now()"+
			" WHERE collection = $1 AND id = $2 AND version = $5"+
			" RETURNING collection, id, fields, version, createdat, updatedat",
		sql)
	assert.Equal(t, []any{"users", "u1", `{"role":"editor"}`, []string{"permissions"}, int64(4)}, args)
}
