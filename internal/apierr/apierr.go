// Package apierr defines the error kinds the dispatcher's HTTP surface
// renders to JSON, per the wire shape {message, stack?, status}.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed API error that knows how to render itself as the
// {message, stack, status} JSON body the dispatcher's clients expect.
type Error struct {
	Status  int
	Message string
	Stack   string
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound builds the 404 error returned when a cache key or pending
// request is absent. It is an expected condition and never logged as a
// failure by callers.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// BadInput builds the 400 error for malformed bodies or missing client
// identification.
func BadInput(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Internal builds the 500 error for filesystem failures and anything
// else unexpected. stack is optional context, e.g. a wrapped error's
// string, and is omitted from the JSON body when empty.
func Internal(stack string, format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: fmt.Sprintf(format, args...), Stack: stack}
}

type wireError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Status  int    `json:"status"`
}

// WriteJSON writes err as the standard JSON error body and sets the
// response status code. Any error not already an *Error is treated as
// Internal.
func WriteJSON(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err.Error(), "Internal Server Error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(wireError{
		Message: apiErr.Message,
		Stack:   apiErr.Stack,
		Status:  apiErr.Status,
	})
}

// NotFoundBody is the literal body used for unmatched routes, per §6 of
// the dispatcher's HTTP surface.
var NotFoundBody = []byte(`{"message":"Not Found: Error 404"}`)
