// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Generic details returned on access failures. They never name the permission or role
// that was missing.
const (
	DetailUnauthorized = "authentication required"
	DetailForbidden    = "insufficient permissions"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Forbidden(w)
	case errors.Is(err, ErrUnauthorized):
		Unauthorized(w)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Unauthorized writes a 401 problem with a generic detail.
func Unauthorized(w http.ResponseWriter) {
	Problem(w, http.StatusUnauthorized, "Unauthorized", DetailUnauthorized)
}

// Forbidden writes a 403 problem with a generic detail.
func Forbidden(w http.ResponseWriter) {
	Problem(w, http.StatusForbidden, "Forbidden", DetailForbidden)
}
