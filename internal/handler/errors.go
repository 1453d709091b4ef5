package handler

import (
	"errors"
	"net/http"
)

// ErrorStatus maps a service error to an HTTP status code and a body that is
// safe to return to callers.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized: invalid or missing authentication"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "Bad request: invalid input parameters"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
