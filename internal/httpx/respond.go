// Package httpx holds the JSON response envelope shared by the HTTP API and
// the auth middleware, so every error reaches clients in one shape.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Error codes written by more than one package.
const (
	CodeMissingToken = "MISSING_TOKEN"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "INSUFFICIENT_PERMISSIONS"
	CodeRateLimited  = "RATE_LIMITED"
	CodeAuthError    = "AUTH_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
)

// Error is the error member of Envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// WriteJSON writes value with status.
func WriteJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// WriteData writes a 200 success envelope.
func WriteData(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// WriteError writes a failure envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Envelope{Error: &Error{Code: code, Message: message}})
}
