// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid generates document identifiers.

Identifiers are UUIDv7 strings, so documents keyed by them sort by creation
time (millisecond precision) in both store backends.
*/
package uuid

import "github.com/google/uuid"

// New returns a new UUIDv7 string.
//
// It panics only when the OS random source fails, which the process cannot
// recover from anyway.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}
	return id.String()
}
