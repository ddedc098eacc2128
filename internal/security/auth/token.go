// Package auth implements bearer-token authentication for predictgrid's
// gRPC services: a constant-time token comparison plus gRPC interceptors
// that enforce it on every method not listed in Config.SkipMethods.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/predictgrid/predictgrid/internal/servingerr"
)

const (
	// MinTokenLength is the minimum accepted length for a worker or client
	// auth token.
	MinTokenLength = 32

	// DefaultTokenLength is the length GenerateToken produces.
	DefaultTokenLength = 64
)

// ValidateToken reports whether provided matches expected, in constant time
// so a timing side-channel can't be used to guess a valid token byte by
// byte. Tokens shorter than MinTokenLength are rejected outright.
func ValidateToken(provided, expected string) bool {
	if len(provided) < MinTokenLength {
		return false
	}
	if len(expected) < MinTokenLength {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// GenerateToken generates a master auth token of DefaultTokenLength, for
// operators bootstrapping a cluster without supplying their own.
func GenerateToken() (string, error) {
	return GenerateTokenWithLength(DefaultTokenLength)
}

// GenerateTokenWithLength generates a hex-encoded random token of the
// requested length.
func GenerateTokenWithLength(length int) (string, error) {
	if length < MinTokenLength {
		return "", servingerr.InvalidInputs("token length must be at least %d, got %d", MinTokenLength, length)
	}

	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", servingerr.SystemError("generate random token bytes: %v", err)
	}

	return hex.EncodeToString(bytes), nil
}

// ParseBearerToken extracts the token from a "Bearer <token>" authorization
// header value. Returns the token and true if the prefix matched, empty
// string and false otherwise.
func ParseBearerToken(auth string) (string, bool) {
	const prefix = "Bearer "
	if len(auth) <= len(prefix) {
		return "", false
	}
	if auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}
