package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/Tyrowin/pollchat/internal/auth"
	"github.com/Tyrowin/pollchat/internal/httpwire"
	"github.com/Tyrowin/pollchat/internal/store"
)

// HTTPError is a handler failure with the status it maps to.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func newHTTPError(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return newHTTPError(http.StatusBadRequest, format, args...)
}

func notFound(format string, args ...any) error {
	return newHTTPError(http.StatusNotFound, format, args...)
}

func unauthorized(format string, args ...any) error {
	return newHTTPError(http.StatusUnauthorized, format, args...)
}

func conflict(format string, args ...any) error {
	return newHTTPError(http.StatusConflict, format, args...)
}

func unavailable(format string, args ...any) error {
	return newHTTPError(http.StatusServiceUnavailable, format, args...)
}

// storeError translates persistence sentinels into client errors. Anything
// unrecognized passes through and becomes a 500.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return notFound("User not found")
	case errors.Is(err, store.ErrGroupNotFound):
		return notFound("Group not found")
	case errors.Is(err, store.ErrMessageNotFound):
		return notFound("Message not found")
	case errors.Is(err, store.ErrUsernameTaken):
		return conflict("Username already exists")
	case errors.Is(err, store.ErrGroupExists):
		return conflict("Group name already exists")
	case errors.Is(err, auth.ErrMismatch):
		return unauthorized("Invalid username or password")
	}
	return err
}

// errorResponse renders err as the {"error": ...} envelope.
func errorResponse(err error) *httpwire.Response {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpwire.Error(httpErr.Status, httpErr.Message)
	}
	log.Printf("Internal error: %v", err)
	return httpwire.Error(http.StatusInternalServerError, "Internal Server Error")
}
