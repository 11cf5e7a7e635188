package waterfall

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is returned when tier definitions or run inputs are malformed.
	ErrInvalidConfiguration = errors.New("invalid waterfall configuration")

	// ErrDataUnavailable marks missing inputs. It is never fatal to a run.
	ErrDataUnavailable = errors.New("waterfall input unavailable")
)

// FieldError points at one offending input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigurationError collects every problem found while validating a run.
type ConfigurationError struct {
	Fields []FieldError
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidConfiguration.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfiguration, strings.Join(parts, "; "))
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

func (e *ConfigurationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ConfigurationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// DataUnavailableError describes an input the run had to replace with zeros or placeholders.
type DataUnavailableError struct {
	Input  string
	Detail string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrDataUnavailable, e.Input, e.Detail)
}

func (e *DataUnavailableError) Unwrap() error { return ErrDataUnavailable }
