package handler

// Response helpers. Every error response has the same shape:
//
//	{"error": "not_found", "message": "account \"bob\" not found"}
//
// so clients can always parse it the same way regardless of status code.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/birthday-reminder/internal/apperror"
)

// maxBodyBytes caps request bodies; every payload here is tiny.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable type, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// MessageResponse is the body of simple success responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends data as JSON with the given status code. Headers and
// status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// classify maps a domain error to an HTTP status and error type.
// ok is false for errors that aren't *apperror.AppError.
func classify(err error) (status int, errorType string, message string, ok bool) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, "internal_error", "An internal error occurred", false
	}

	status, errorType = http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, errorType = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, errorType = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		status, errorType = http.StatusConflict, "conflict"
	}
	return status, errorType, appErr.Message, true
}

// writeError maps a domain error to its HTTP status and sends it. Errors
// that aren't AppErrors become a generic 500 so internal details (SQL, file
// paths) never reach the client; they are logged instead.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, errorType, message, ok := classify(err)
	if !ok {
		logger.Error("internal error", slog.String("error", err.Error()))
	}
	writeJSON(w, status, ErrorResponse{Error: errorType, Message: message})
}

// decodeJSON reads a JSON body into dst. Malformed or oversized bodies
// become validation errors so they surface as 400, never 500.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must be at most %d bytes", maxErr.Limit))
		default:
			return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
		}
	}
	return nil
}
