package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/unilib/apiserver/internal/store"
)

// Error is a client-facing failure carrying the HTTP status to respond with.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(status int, format string, args ...any) error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) error {
	return newError(http.StatusBadRequest, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(http.StatusForbidden, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(http.StatusNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(http.StatusConflict, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return newError(http.StatusUnauthorized, format, args...)
}

func Unavailable(format string, args ...any) error {
	return newError(http.StatusServiceUnavailable, format, args...)
}

// missing turns store.ErrNotFound into a 404 naming what was looked up.
func missing(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("%s not found", what)
	}
	return err
}

// StatusOf returns the HTTP status carried by err, or 0 when it has none.
func StatusOf(err error) int {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Status
	}
	return 0
}
