package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindSummaryUnavailable Kind = "summary_unavailable"
	KindConflict           Kind = "conflict"
)

// Error is a domain error carrying enough structure for a caller to render a specific message.
type Error struct {
	Kind    Kind
	Field   string // offending input field
	ID      string // offending resource id, not found only
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input on field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// NotFound reports an unknown resource id.
func NotFound(resource string, id int64) *Error {
	return &Error{
		Kind:    KindNotFound,
		ID:      fmt.Sprintf("%d", id),
		Message: fmt.Sprintf("%s not found: %d", resource, id),
	}
}

// SummaryUnavailable reports that no fresh summary could be produced.
func SummaryUnavailable(productID int64, cause error) *Error {
	return &Error{
		Kind:    KindSummaryUnavailable,
		ID:      fmt.Sprintf("%d", productID),
		Message: fmt.Sprintf("summary unavailable for product %d", productID),
		Err:     cause,
	}
}

// Conflict reports a request that clashes with one still in flight.
func Conflict(field, msg string) *Error {
	return &Error{Kind: KindConflict, Field: field, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool         { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool           { return KindOf(err) == KindNotFound }
func IsSummaryUnavailable(err error) bool { return KindOf(err) == KindSummaryUnavailable }
func IsConflict(err error) bool           { return KindOf(err) == KindConflict }
