package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateMessage signals a provider message id already stored for the tenant.
	ErrDuplicateMessage = errors.New("duplicate provider message")
	// ErrDuplicateTicket signals a concurrent insert on the same conversation key.
	ErrDuplicateTicket = errors.New("duplicate conversation ticket")
	// ErrDuplicateContact signals a concurrent insert on the same contact identifier.
	ErrDuplicateContact = errors.New("duplicate contact identifier")
	// ErrInvalidPayload marks an inbound payload that can never be ingested.
	ErrInvalidPayload = errors.New("invalid inbound payload")
)

// ConfigError is a configuration gap that retrying cannot fix.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// NewConfigError builds a ConfigError.
func NewConfigError(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
