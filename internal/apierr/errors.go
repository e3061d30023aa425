// Package apierr provides the error variants the request pipeline translates
// into HTTP responses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind discriminates the classified error variants.
type Kind int

const (
	// KindUnclassified covers every error outside the taxonomy.
	KindUnclassified Kind = iota

	// KindSchema indicates the request failed a declarative schema check.
	KindSchema

	// KindValidation indicates one or more fields failed validation rules.
	KindValidation

	// KindUnauthorized indicates the request could not be authenticated.
	KindUnauthorized
)

// String returns the log name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unclassified"
	}
}

// Constraint is a single named rule a field failed.
type Constraint struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Violation groups the constraints one field failed, in the order the
// validator enumerated them.
type Violation struct {
	Field       string       `json:"field"`
	Constraints []Constraint `json:"constraints"`
}

// Error is a classified pipeline error. Kind selects which fields are meaningful:
// Err for KindSchema, Violations for KindValidation, Message for KindUnauthorized.
type Error struct {
	Kind       Kind
	Message    string
	Violations []Violation
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindSchema:
		if e.Err != nil {
			return fmt.Sprintf("schema validation failed: %v", e.Err)
		}
		return "schema validation failed"
	case KindValidation:
		return fmt.Sprintf("validation failed: %s", strings.Join(e.Messages(), "; "))
	case KindUnauthorized:
		return "unauthorized: " + e.Message
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Message
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Messages flattens the constraint messages of every violation: violation
// order first, then constraint order within each violation. The result is
// never nil.
func (e *Error) Messages() []string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		for _, c := range v.Constraints {
			msgs = append(msgs, c.Message)
		}
	}
	return msgs
}

// Schema wraps a schema validator failure. The cause is kept for server-side
// logging and never sent to clients.
func Schema(err error) *Error {
	return &Error{Kind: KindSchema, Err: err}
}

// Validation builds a field validation error from ordered violations.
func Validation(violations ...Violation) *Error {
	return &Error{Kind: KindValidation, Violations: violations}
}

// Unauthorized builds an authentication failure carrying a client-facing message.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// KindOf reports how err is classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

// As returns the classified error wrapped in err, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// StatusError is an unclassified error that knows which HTTP status it maps to.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

// NewStatus creates a StatusError.
func NewStatus(status int, message string) *StatusError {
	return &StatusError{Status: status, Message: message}
}

// WrapStatus creates a StatusError around a cause.
func WrapStatus(status int, message string, err error) *StatusError {
	return &StatusError{Status: status, Message: message, Err: err}
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status, falling back to 500 for values that are
// not error statuses.
func (e *StatusError) HTTPStatusCode() int {
	if e.Status < http.StatusBadRequest || e.Status > 599 {
		return http.StatusInternalServerError
	}
	return e.Status
}
