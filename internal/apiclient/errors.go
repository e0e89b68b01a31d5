package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkMessage is shown whenever the backend cannot be reached or its
// response cannot be read.
const NetworkMessage = "Impossible de contacter le serveur."

// ValidationError is raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// HTTPError is a non-2xx response. Body keeps the raw payload so callers can
// decode structured error documents (e.g. a 409 carrying the server state).
type HTTPError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string { return e.Message }

// NetworkError wraps a transport or decoding failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AsHTTPError unwraps err into an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// IsConflict reports whether err is an HTTP 409.
func IsConflict(err error) (*HTTPError, bool) {
	he, ok := AsHTTPError(err)
	if !ok || he.Status != http.StatusConflict {
		return nil, false
	}
	return he, true
}

// UserMessage maps err onto the one-line banner shown to the participant.
// Errors that carry their own banner through a UserMessage method win.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	if he, ok := AsHTTPError(err); ok {
		return he.Message
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return NetworkMessage
	}
	return err.Error()
}
