package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors surfaced to callers.
type ErrorKind string

// Error kinds returned by entity operations.
const (
	// ErrorKindNotFound reports an operation against an id with no record.
	ErrorKindNotFound ErrorKind = "NotFound"
	// ErrorKindInvalidInput reports a rejected field value.
	ErrorKindInvalidInput ErrorKind = "InvalidInput"
)

// Error is the tagged result returned by entity operations.
type Error struct {
	Kind ErrorKind `json:"kind"`
	Msg  string    `json:"message"`
}

func (e Error) Error() string { return e.Msg }

// NotFound builds the error returned when id does not reference a record of
// the given kind.
func NotFound(entity EntityType, id uint64) Error {
	return Error{
		Kind: ErrorKindNotFound,
		Msg:  fmt.Sprintf("%s with id=%d not found", entity.DisplayName(), id),
	}
}

// InvalidInput builds an input validation error.
func InvalidInput(msg string) Error {
	return Error{Kind: ErrorKindInvalidInput, Msg: msg}
}

// IsNotFound reports whether err carries a NotFound domain error.
func IsNotFound(err error) bool {
	return hasKind(err, ErrorKindNotFound)
}

// IsInvalidInput reports whether err carries an InvalidInput domain error.
func IsInvalidInput(err error) bool {
	return hasKind(err, ErrorKindInvalidInput)
}

func hasKind(err error, kind ErrorKind) bool {
	var de Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// ErrCounterExhausted is returned when the id counter cannot advance further.
var ErrCounterExhausted = errors.New("id counter exhausted")

// RecordTooLargeError reports a record whose serialized form exceeds
// MaxRecordSize. Nothing is written when it is returned.
type RecordTooLargeError struct {
	Entity EntityType
	ID     uint64
	Size   int
	Max    int
}

func (e *RecordTooLargeError) Error() string {
	return fmt.Sprintf("%s %d: serialized record is %d bytes, limit is %d", e.Entity, e.ID, e.Size, e.Max)
}
