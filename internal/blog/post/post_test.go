// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
)

/*
TestReadTime rounds to the nearest minute and never drops below one.
*/
func TestReadTime(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  int
	}{
		{"empty", 0, 1},
		{"short", 50, 1},
		{"rounds_down", 299, 1},
		{"rounds_up", 300, 2},
		{"long", 1000, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.TrimSpace(strings.Repeat("word ", tt.words))
			assert.Equal(t, tt.want, post.ReadTime(body))
		})
	}
}

/*
TestExcerpt cuts long bodies on a word boundary.
*/
func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short body", post.Excerpt("  short\n\nbody "))

	long := strings.Repeat("river ", 100)
	excerpt := post.Excerpt(long)
	assert.True(t, strings.HasSuffix(excerpt, "…"))
	assert.LessOrEqual(t, len([]rune(excerpt)), 201)
	assert.False(t, strings.HasSuffix(strings.TrimSuffix(excerpt, "…"), " "))
}

/*
TestNormalizeTags lowercases and de-duplicates.
*/
func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"flash", "fiction"}, post.NormalizeTags([]string{" Flash", "fiction", "FLASH", ""}))
	assert.Empty(t, post.NormalizeTags(nil))
}

/*
TestParseStatus rejects unknown statuses.
*/
func TestParseStatus(t *testing.T) {
	status, err := post.ParseStatus("pending")
	assert.NoError(t, err)
	assert.Equal(t, post.StatusPending, status)

	_, err = post.ParseStatus("archived")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}
