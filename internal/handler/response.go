package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError so the mobile
// client always sees the same shapes:
//
//   success: the resource as JSON
//   failure: {"error": "validation_error", "message": "Passwords do not match.", "field": "confirmPassword"}
//
// The message of a typed domain error is shown to the user as is, so
// services word those messages for people, not for logs.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/auth"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the error body of every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable kind (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, when known
}

// writeJSON sends data as JSON with the given status code.
// Headers and status must go out before the body; once Encode writes,
// later header changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and sends it.
//
// errors.Is walks the wrap chain, so a service returning
// fmt.Errorf("saving roster: %w", apperror.InvalidPhone()) still maps to
// 400. Anything that is not an AppError is a backend failure: the client
// gets a generic 500 and the details stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := classify(err)
		writeJSON(w, status, ErrorResponse{
			Error:   kind,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// decodeJSON reads a JSON body into dst. Failures come back as validation
// errors so writeError answers 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding request: %w", apperror.ValidationFailed("", "Invalid JSON body."))
	}
	return nil
}

// currentUser returns the user RequireAuth put in the context. A missing
// user is a wiring mistake (route outside the auth group), answered 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	return userID, true
}
