// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxkey defines the context keys shared by middleware, ctxutil and authz.
// The key type is unexported so no other package can collide with them.
package ctxkey

type key string

const (
	KeyRequestID key = "request_id"
	KeyLogger    key = "logger"

	// KeyUser holds the verified token claims ([sec.AuthClaims]).
	KeyUser key = "user"

	// KeyPrincipal holds the principal resolved from the profile store.
	KeyPrincipal key = "principal"
)
