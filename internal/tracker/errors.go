package tracker

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across package boundaries.
var (
	// ErrNotFound means the identity is unknown.
	ErrNotFound = errors.New("entity not found")
	// ErrConflict means the identity is already registered.
	ErrConflict = errors.New("entity already exists")
	// ErrNoDate means the oracle answered with the no-date sentinel.
	ErrNoDate = errors.New("no date found")
)

// ConfigError reports invalid caller input on registration or update.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for a field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
