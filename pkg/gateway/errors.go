package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/core-tools/hsu-governor/pkg/errors"
)

// APIError is the structured error response body
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes for common scenarios
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, APIError{Error: message, Code: code})
}

// respondDomainError maps a domain error to its HTTP status and code
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsValidationError(err):
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.IsNotFoundError(err):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.IsConflictError(err):
		respondError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
