package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "post not found with id abc123"}
//
// A banned account gets one extra field so the client can show a permanent
// ban notice instead of a "try again" prompt:
//   {"error": "terminated", "message": "...", "terminated": true}

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/xswarm-forum/internal/apperror"
)

// maxBodyBytes caps request bodies. The largest legitimate body is a post
// (40k characters of text plus a title), well under this.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error      string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message    string `json:"message"` // Human-readable description
	Field      string `json:"field,omitempty"`
	Terminated bool   `json:"terminated,omitempty"`
}

// successResponse wraps results that the client expects under a success flag.
type successResponse struct {
	Success bool `json:"success"`
	Score   *int `json:"score,omitempty"`
	Data    any  `json:"data,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, the headers are on the wire and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// Services return apperror sentinels wrapped in *AppError; this is the only
// place they become status codes. errors.Is walks the wrap chain, so
//
//	fmt.Errorf("service/post: %w", apperror.NotFound("post", id))
//
// still matches ErrNotFound.
//
// Anything that is not an *AppError is a storage or programming failure. It
// is logged with the request path and reported as a bare 500. The raw
// message might contain SQL or file paths, so it is never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	resp := ErrorResponse{Message: appErr.Message, Field: appErr.Field}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperror.ErrUnauthenticated):
		status, resp.Error = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrTerminated):
		status, resp.Error = http.StatusForbidden, "terminated"
		resp.Terminated = true
	case errors.Is(err, apperror.ErrForbidden):
		status, resp.Error = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, resp.Error = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		// Duplicate usernames are a plain bad request for the client.
		status, resp.Error = http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrInvalidParent):
		status, resp.Error = http.StatusBadRequest, "invalid_parent"
	case errors.Is(err, apperror.ErrValidation):
		status, resp.Error = http.StatusBadRequest, "validation_error"
	default:
		resp.Error = "internal_error"
	}

	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON request body into dst. Bodies over maxBodyBytes
// and malformed JSON become validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("body", fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
