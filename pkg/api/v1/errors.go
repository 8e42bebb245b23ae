// Package v1 holds the error taxonomy shared by services and the HTTP API.
package v1

import "errors"

// Error kinds. Match them with errors.Is.
var (
	ErrUnauthorized   = errors.New("not authenticated")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
)

// Error is an error whose message is safe to show to API clients.
// It unwraps to its Kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Unauthorized returns an authentication error with msg.
func Unauthorized(msg string) *Error { return &Error{Kind: ErrUnauthorized, Message: msg} }

// Invalid returns a validation error with msg.
func Invalid(msg string) *Error { return &Error{Kind: ErrInvalidRequest, Message: msg} }

// NotFound returns a not-found error with msg.
func NotFound(msg string) *Error { return &Error{Kind: ErrNotFound, Message: msg} }

// Conflict returns a conflict error with msg.
func Conflict(msg string) *Error { return &Error{Kind: ErrConflict, Message: msg} }

// Message returns the client-facing message for err: the message of the
// nearest *Error in its chain, or the text of a bare kind. ok is false when
// err carries neither.
func Message(err error) (msg string, ok bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message, true
	}
	for _, kind := range []error{ErrUnauthorized, ErrInvalidRequest, ErrNotFound, ErrConflict} {
		if errors.Is(err, kind) {
			return kind.Error(), true
		}
	}
	return "", false
}
