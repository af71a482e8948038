// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error taxonomy for the Dreamlog API.

Every error that leaves a service is an [AppError] carrying a stable,
machine-readable code. Callers branch on the code (see [HasCode]); the HTTP
layer maps it to a status through the HTTPStatus field.

Authorization failures (UNAUTHENTICATED, FORBIDDEN) are terminal and must not
be retried by callers. STORE_UNAVAILABLE is the only code that is safe to retry.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// # Error Codes

const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeDuplicatePending  = "DUPLICATE_PENDING"
	CodePendingExists     = "PENDING_EXISTS"
	CodeCooldownActive    = "COOLDOWN_ACTIVE"
	CodeAlreadyPrivileged = "ALREADY_PRIVILEGED"
	CodeUnknownRole       = "UNKNOWN_ROLE"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodePartialFailure    = "PARTIAL_FAILURE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError is the canonical error type for the Dreamlog API.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients.
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "FORBIDDEN").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
	// RetryAfter is set on COOLDOWN_ACTIVE and RATE_LIMITED errors.
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause returns a copy of e carrying cause for server-side logging.
func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func newError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// # Client Errors (4xx)

// Unauthenticated creates a 401 [AppError] for requests without a principal.
func Unauthenticated(msg string) *AppError {
	return newError(CodeUnauthenticated, msg, http.StatusUnauthorized)
}

// Unauthorized is kept for credential failures (bad password, bad token). It
// shares the UNAUTHENTICATED code.
func Unauthorized(msg string) *AppError {
	return Unauthenticated(msg)
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return newError(CodeForbidden, msg, http.StatusForbidden)
}

// NotFound creates a 404 [AppError] for a named resource.
//
//	apperr.NotFound("Petition") // "Petition not found"
func NotFound(resource string) *AppError {
	return newError(CodeNotFound, resource+" not found", http.StatusNotFound)
}

// Conflict creates a 409 [AppError] for lost optimistic updates and duplicates.
func Conflict(msg string) *AppError {
	return newError(CodeConflict, msg, http.StatusConflict)
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidTransition creates a 409 [AppError] for illegal state or ladder moves.
func InvalidTransition(msg string) *AppError {
	return newError(CodeInvalidTransition, msg, http.StatusConflict)
}

// DuplicatePending creates a 409 [AppError] for a second pending petition.
func DuplicatePending() *AppError {
	return newError(CodeDuplicatePending, "A pending petition already exists", http.StatusConflict)
}

// PendingExists creates a 409 [AppError] reported by eligibility checks.
func PendingExists() *AppError {
	return newError(CodePendingExists, "A petition is already awaiting review", http.StatusConflict)
}

// CooldownActive creates a 429 [AppError] that tells the client when to retry.
func CooldownActive(until time.Time) *AppError {
	err := newError(CodeCooldownActive, "Petition cooldown is active", http.StatusTooManyRequests)
	err.RetryAfter = &until
	return err
}

// AlreadyPrivileged creates a 409 [AppError] for principals that already write.
func AlreadyPrivileged() *AppError {
	return newError(CodeAlreadyPrivileged, "Account already has writing privileges", http.StatusConflict)
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return newError(CodeRateLimited,
		fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		http.StatusTooManyRequests)
}

// # Server Errors (5xx)

// UnknownRole creates a 500 [AppError] for a role string outside the closed set.
// It indicates corrupted data, not a client mistake.
func UnknownRole(raw string) *AppError {
	return newError(CodeUnknownRole, fmt.Sprintf("Unknown role %q", raw), http.StatusInternalServerError)
}

// StoreUnavailable creates a 503 [AppError] wrapping a document store failure.
func StoreUnavailable(cause error) *AppError {
	return &AppError{
		Code:       CodeStoreUnavailable,
		Message:    "Storage is temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// PartialFailure creates a 500 [AppError] for a multi-step write whose
// compensation also failed. Manual reconciliation is required.
func PartialFailure(msg string, cause error) *AppError {
	return &AppError{
		Code:       CodePartialFailure,
		Message:    msg,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// HasCode reports whether err carries an [AppError] with the given code.
func HasCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}
