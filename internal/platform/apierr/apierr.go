package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
	// RedirectTo is the canonical route the client should move to. Only set on
	// step conflicts.
	RedirectTo string
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

func BadRequest(code, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, fmt.Errorf(format, args...))
}

func Unauthorized(code, msg string) *Error {
	return New(http.StatusUnauthorized, code, errors.New(msg))
}

func Forbidden(code, msg string) *Error {
	return New(http.StatusForbidden, code, errors.New(msg))
}

func NotFound(code, msg string) *Error {
	return New(http.StatusNotFound, code, errors.New(msg))
}

func Conflict(code, msg string) *Error {
	return New(http.StatusConflict, code, errors.New(msg))
}

func Internal(code string, err error) *Error {
	return New(http.StatusInternalServerError, code, err)
}

// WrongStep is returned when an endpoint is called from a step other than the
// one it serves.
func WrongStep(redirectTo string) *Error {
	return &Error{
		Status:     http.StatusConflict,
		Code:       "wrong_step",
		Err:        errors.New("Wrong step"),
		RedirectTo: redirectTo,
	}
}

func AlreadySubmitted(redirectTo string) *Error {
	return &Error{
		Status:     http.StatusConflict,
		Code:       "already_submitted",
		Err:        errors.New("already submitted"),
		RedirectTo: redirectTo,
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

// HasStatus reports whether err carries the given HTTP status.
func HasStatus(err error, status int) bool {
	ae, ok := As(err)
	return ok && ae.Status == status
}
