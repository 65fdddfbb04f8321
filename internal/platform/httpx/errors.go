// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Token validation failures. Each maps to its own stable code so API
	// clients can distinguish a stale token from a revoked one.
	ErrMissingToken     = errors.New("missing token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrUserNotFound     = errors.New("user not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// RespondError maps domain errors to HTTP responses. The code field is part
// of the API contract; messages are advisory.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "not_found", "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "conflict", "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "validation_failed", "Validation Failed", err.Error())
	case errors.Is(err, ErrMissingToken):
		Problem(w, http.StatusUnauthorized, "missing_token", "Unauthorized", err.Error())
	case errors.Is(err, ErrInvalidToken):
		Problem(w, http.StatusUnauthorized, "invalid_token", "Unauthorized", err.Error())
	case errors.Is(err, ErrTokenExpired):
		Problem(w, http.StatusUnauthorized, "token_expired", "Unauthorized", err.Error())
	case errors.Is(err, ErrUserNotFound):
		Problem(w, http.StatusUnauthorized, "user_not_found", "Unauthorized", err.Error())
	case errors.Is(err, ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "permission_denied", "Forbidden", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "forbidden", "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "internal_error", "Internal Error", "")
	}
}
