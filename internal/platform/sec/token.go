// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// secureTokenBytes is the entropy of opaque tokens (256 bits).
const secureTokenBytes = 32

// GenerateSecureToken returns a random base64url token for refresh sessions and
// password resets. Only its [HashToken] digest is ever stored.
func GenerateSecureToken() (string, error) {
	randomBytes := make([]byte, secureTokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("sec: failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken computes the hex SHA-256 digest used as a storage key.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
