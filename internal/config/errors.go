package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks a setting that was read but cannot be used.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a config file or env layer that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)

// FieldError names the koanf key that failed validation.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Key, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *FieldError) Unwrap() error { return ErrInvalidConfig }

func fieldError(key, format string, args ...any) error {
	return &FieldError{Key: key, Reason: fmt.Sprintf(format, args...)}
}
