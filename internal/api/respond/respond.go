package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/zegl/eligo/internal/model"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteServiceError maps a service error to its HTTP status.
func WriteServiceError(w http.ResponseWriter, err error) {
	status, _, msg := Classify(err)
	WriteError(w, status, msg)
}

// Classify maps err to an HTTP status, a stable machine code and a message
// safe to show to the caller. Denials and internal failures never carry
// their cause.
func Classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized", "not allowed"
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "invalid", err.Error()
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict", "already exists"
	}
	return http.StatusInternalServerError, "internal", "internal error"
}
