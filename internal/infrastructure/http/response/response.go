// Package response provides the JSON envelope used by every HTTP handler.
package response

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON shape returned for any non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// OK writes a 200 response with data encoded as JSON.
func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, data)
}

// Created writes a 201 response with data encoded as JSON.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, data)
}

// Error writes a JSON error envelope with the given code, message, and status.
func Error(w http.ResponseWriter, code, message string, status int) {
	writeError(w, status, code, message, nil)
}

// ValidationError writes a 400 with a single field/issue detail.
func ValidationError(w http.ResponseWriter, field, issue string) {
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", []ErrorDetail{{Field: field, Issue: issue}})
}

// Unauthorized writes a 401 with the given message.
func Unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// Conflict writes a 409 with the given message.
func Conflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, "CONFLICT", message, nil)
}

// ClientClosedRequest writes the non-standard 499 used for cooperative cancellation.
func ClientClosedRequest(w http.ResponseWriter, message string) {
	writeError(w, 499, "CLIENT_CLOSED_REQUEST", message, nil)
}

// Internal writes a 500 with the given message.
func Internal(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

func write(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		Internal(w, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details []ErrorDetail) {
	body, err := json.Marshal(ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}})
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
