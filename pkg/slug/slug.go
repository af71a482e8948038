// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package slug turns post titles and category names into ASCII URL slugs,
// e.g. "Đêm mưa ở Huế" becomes "dem-mua-o-hue".
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	separators = regexp.MustCompile(`[^a-z0-9]+`)

	// Letters with no decomposition to a base letter.
	special = strings.NewReplacer("đ", "d", "Đ", "d", "ß", "ss", "æ", "ae", "Æ", "ae", "ø", "o", "Ø", "o", "ł", "l", "Ł", "l")
)

// From converts s into a lowercase slug of [a-z0-9] runs joined by single
// hyphens. It returns "" when s has no usable characters.
func From(s string) string {
	// Chains keep state, so each call builds its own.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, special.Replace(s))
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Trim(separators.ReplaceAllString(folded, "-"), "-")
}
