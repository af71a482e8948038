// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/ctxkey"
)

// WithPrincipal attaches the principal resolved for the current request.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, ctxkey.KeyPrincipal, principal)
}

// PrincipalFrom returns the request principal, or nil for anonymous requests.
func PrincipalFrom(ctx context.Context) *Principal {
	principal, _ := ctx.Value(ctxkey.KeyPrincipal).(*Principal)
	return principal
}

// RequiredPrincipal is [PrincipalFrom] that fails with UNAUTHENTICATED.
func RequiredPrincipal(ctx context.Context) (*Principal, error) {
	principal := PrincipalFrom(ctx)
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	return principal, nil
}
