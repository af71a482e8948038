// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package convert parses loosely typed query parameters.

Malformed input falls back to a default instead of failing. Handlers that must
reject bad input should use [strconv] and report a validation error.
*/
package convert

import "strconv"

// ToIntD parses s as an int, returning def when s is empty or malformed.
func ToIntD(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// ToBool parses "true", "1", "false", "0" and friends. Anything else is false.
func ToBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}
