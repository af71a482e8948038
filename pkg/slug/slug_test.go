// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package slug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/dreamlog/pkg/slug"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Leading and trailing  ", "leading-and-trailing"},
		{"Café & Crème", "cafe-creme"},
		{"Đêm mưa ở Huế", "dem-mua-o-hue"},
		{"Straße", "strasse"},
		{"multiple---hyphens__and  spaces", "multiple-hyphens-and-spaces"},
		{"2026: a year", "2026-a-year"},
		{"!!!", ""},
		{"日本語", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, slug.From(tt.in))
		})
	}
}
