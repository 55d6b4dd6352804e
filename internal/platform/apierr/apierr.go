package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries an HTTP-equivalent status and a stable machine code alongside
// the wrapped cause. Handlers map it straight onto the response.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Validation is a 400-equivalent for malformed or missing caller input.
func Validation(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}

// NotFound is a 404-equivalent. Ownership failures use the same code so a
// caller cannot distinguish "absent" from "owned by someone else".
func NotFound(code string) *Error {
	return New(http.StatusNotFound, code, errors.New("not found"))
}

// Disabled is a 503-equivalent for a missing credential or connection.
func Disabled(code string) *Error {
	return New(http.StatusServiceUnavailable, code, errors.New("service unavailable"))
}

// Upstream is a 502-equivalent for a failed remote call.
func Upstream(code string, err error) *Error {
	return New(http.StatusBadGateway, code, err)
}

// StatusOf extracts the HTTP-equivalent status from err, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf extracts the machine code from err, defaulting to "internal".
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return "internal"
}
