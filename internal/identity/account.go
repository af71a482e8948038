// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"strings"
	"time"
)

// # Token Constraints

const (
	// MinPasswordLength applies to registration, reset and change.
	MinPasswordLength = 8

	// MaxDisplayNameLength caps the public name shown on posts and comments.
	MaxDisplayNameLength = 80
)

// # Domain Entities

// Account is a credential record joined with the public parts of its profile.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RefreshSession is one signed-in device. The ID stays stable across refresh
// token rotations so that access tokens and presence streams can follow it.
type RefreshSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"`
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NormalizeEmail lowercases and trims an address. Accounts are keyed by it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// displayNameFor falls back to the local part of the address.
func displayNameFor(displayName, email string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// # Field Identifiers

const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "displayName"
	FieldToken           = "token"
	FieldCurrentPassword = "currentPassword"
	FieldNewPassword     = "newPassword"
	FieldAccessToken     = "accessToken"
	FieldTokenType       = "tokenType"
	FieldExpiresIn       = "expiresIn"
	FieldUser            = "user"
	FieldMessage         = "message"
)
