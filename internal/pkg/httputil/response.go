// Package httputil provides HTTP response helpers and middleware.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes v as a bare JSON body. Use Success for enveloped responses.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "status", status, "error", err)
	}
}

// Success writes {"data": v}.
func Success(w http.ResponseWriter, status int, v any) {
	JSON(w, status, dataEnvelope{Data: v})
}

// Error writes {"error": {"message": message}}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, errorEnvelope{Error: errorBody{Message: message}})
}

// ValidationError writes a 400 with per-field details when err carries
// validator.ValidationErrors, and the error text otherwise.
func ValidationError(w http.ResponseWriter, err error) {
	var details any = err.Error()

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]FieldError, 0, len(validationErrors))
		for _, e := range validationErrors {
			fields = append(fields, FieldError{Field: e.Field(), Message: e.Tag()})
		}
		details = fields
	}

	JSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Message: "validation error",
		Details: details,
	}})
}
