package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrTokenMismatch is returned when a presented channel token does not match its hash.
var ErrTokenMismatch = errors.New("channel token mismatch")

// HashToken hashes a channel inbound token with configured cost.
func HashToken(token string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareToken verifies a presented token against its hashed value.
func CompareToken(hashed, plain string) error {
	if hashed == "" || plain == "" {
		return ErrTokenMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// GenerateToken returns a random URL-safe channel token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
