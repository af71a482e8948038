// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between document store errors and
// higher-level application errors.
package dberr

import (
	"context"
	"errors"

	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// Wrap inspects a store error and converts it into an [apperr.AppError].
//
// Application errors pass through untouched so that a service can call Wrap on
// whatever a callback returned. Anything unclassified is reported as
// STORE_UNAVAILABLE, the only retryable code.
func Wrap(err error, resource string) error {
	if err == nil {
		return nil
	}

	if apperr.IsAppError(err) {
		return err
	}

	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return apperr.NotFound(resource).WithCause(err)
	case errors.Is(err, docstore.ErrConflict):
		return apperr.Conflict(resource + " was modified concurrently").WithCause(err)
	case errors.Is(err, docstore.ErrAlreadyExists):
		return apperr.Conflict(resource + " already exists").WithCause(err)
	case errors.Is(err, docstore.ErrInvalidQuery):
		return apperr.Internal(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	return apperr.StoreUnavailable(err)
}

// IsNotFound reports whether err is a missing-document error from either layer.
func IsNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound) || apperr.HasCode(err, apperr.CodeNotFound)
}
