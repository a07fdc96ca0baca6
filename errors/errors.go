// Package errors provides the error values returned while reading and writing structures.
// It includes all of the stdlib's functions so callers only need one errors import.
package errors

import (
	"fmt"
	"strings"

	"github.com/gostdlib/base/errors"
)

//go:generate stringer -type=Kind -linecomment

// Kind is the broad class of a failure.
type Kind uint8

const (
	// KindUnknown is an error that did not come from this module.
	KindUnknown Kind = Kind(0) // Unknown
	// KindOutOfData means the input ended before a field could be read.
	KindOutOfData Kind = Kind(1) // OutOfData
	// KindValue means a value was outside the domain of its field.
	KindValue Kind = Kind(2) // Value
	// KindIntegrity means a checksum or a fixed value did not match.
	KindIntegrity Kind = Kind(3) // Integrity
	// KindSchema means a structure definition was invalid.
	KindSchema Kind = Kind(4) // Schema
	// KindAbsent means a field was read whose condition is false, or that has no value.
	KindAbsent Kind = Kind(5) // Absent
)

var (
	// ErrOutOfData is wrapped by every error caused by running out of input.
	ErrOutOfData = errors.New("out of data")
	// ErrValue is wrapped by every error caused by a value outside of a field's domain.
	ErrValue = errors.New("invalid value")
	// ErrIntegrity is wrapped by checksum and fixed value mismatches.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrSchema is wrapped by errors found while building a structure definition.
	ErrSchema = errors.New("invalid schema")
	// ErrAbsent is returned when a field has no value in this instance.
	ErrAbsent = errors.New("field is absent")
	// ErrUnknownField is returned when a field name does not exist in a structure.
	ErrUnknownField = fmt.Errorf("%w: unknown field", ErrSchema)
	// ErrMode is returned when an operation is used on an instance in the wrong mode,
	// such as feeding bytes with Write to an instance that reads from a source.
	ErrMode = fmt.Errorf("%w: operation not allowed in this mode", ErrValue)
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrOutOfData, KindOutOfData},
	{ErrIntegrity, KindIntegrity},
	{ErrSchema, KindSchema},
	{ErrAbsent, KindAbsent},
	{ErrValue, KindValue},
}

// KindOf returns the Kind of err. Errors that don't wrap one of the package
// sentinels are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Error records which structure and field an error happened on.
type Error struct {
	// Structure is the name of the structure being read or written.
	Structure string
	// Field is the name of the field. It may be empty for structure level errors.
	Field string
	// Err is the underlying error.
	Err error
}

// E wraps err with the structure and field it happened on. If err is nil, E returns nil.
// If err already carries the same location, it is returned as is.
func E(structure, field string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Structure == structure && e.Field == field {
		return err
	}
	return &Error{Structure: structure, Field: field, Err: err}
}

// Error implements error.
func (e *Error) Error() string {
	sb := strings.Builder{}
	sb.WriteString(e.Structure)
	if e.Field != "" {
		sb.WriteString(".")
		sb.WriteString(e.Field)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the Kind of the wrapped error.
func (e *Error) Kind() Kind {
	return KindOf(e.Err)
}

// OutOfData returns an ErrOutOfData for a read that wanted "want" bytes but got "got".
func OutOfData(want, got int) error {
	return fmt.Errorf("%w: wanted %d bytes, got %d", ErrOutOfData, want, got)
}

// Value returns an ErrValue with a formatted message.
func Value(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValue, fmt.Sprintf(format, a...))
}

// Integrity returns an ErrIntegrity with a formatted message.
func Integrity(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, a...))
}

// Schema returns an ErrSchema with a formatted message.
func Schema(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, a...))
}
