package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors for the core taxonomy. Repositories and services wrap
// these with fmt.Errorf("%w: ...") so handlers can map them to HTTP
// statuses with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrAuthentication   = errors.New("authentication failed")
	ErrNotFound         = errors.New("not found")
	ErrInactive         = errors.New("configuration inactive")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrStorage          = errors.New("storage failure")
	ErrProcessing       = errors.New("processing failure")
)

// Re-exported so callers don't need a second errors import.
var (
	Is = errors.Is
	As = errors.As
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

// WriteDomainError maps a wrapped sentinel to its HTTP status. Internal
// failures never echo detail to the caller.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
	case errors.Is(err, ErrMalformedPayload):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Request body is not a valid JSON object", nil)
	case errors.Is(err, ErrAuthentication):
		WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication failed", nil)
	case errors.Is(err, ErrInactive):
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Configuration is inactive", nil)
	case errors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Resource not found", nil)
	case errors.Is(err, ErrConflict):
		WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal error", nil)
	}
}
