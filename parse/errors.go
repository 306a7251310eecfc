package parse

import (
	"errors"
	"fmt"

	"github.com/mayodev/opsmail/model"
)

// ErrMissingField is matched by every FieldError.
var ErrMissingField = errors.New("missing required field")

// FieldError names the required field a parser could not recover, so that
// template drift in a vendor email shows up in the logs.
type FieldError struct {
	Kind   model.Kind
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("parse %s: field %q: %s", e.Kind, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrMissingField
}

func missing(kind model.Kind, field, reason string) error {
	return &FieldError{Kind: kind, Field: field, Reason: reason}
}

// checkComplete rejects a record that still lacks required fields.
func checkComplete(rec model.Record) error {
	if fields := rec.Missing(); len(fields) > 0 {
		return missing(rec.Kind(), fields[0], "empty after extraction")
	}
	return nil
}
