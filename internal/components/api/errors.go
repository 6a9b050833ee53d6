// Package api provides the JSON envelope helpers shared by HTTP handlers.
package api

import (
	"encoding/json"
	"net/http"
)

// Reason codes are part of the wire contract. Clients switch on them.
const (
	ReasonUnauthenticated    = "unauthenticated"
	ReasonSessionExpired     = "session_expired"
	ReasonInvalidCredentials = "invalid_credentials"

	ReasonRateLimited = "rate_limited"

	ReasonBadRequest   = "bad_request"
	ReasonInvalidField = "invalid_field"
	ReasonNotFound     = "not_found"
	ReasonConflict     = "conflict"
	ReasonForbidden    = "forbidden"
	ReasonGone         = "gone"

	ReasonInternalError = "internal_error"
)

// ErrorEnvelope is the standard error response format.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text
	ReasonCode string `json:"reason_code"` // stable machine-checkable reason
	Message    string `json:"message"`

	RetryAfterSeconds int  `json:"retry_after_seconds,omitempty"`
	AttemptsRemaining *int `json:"attempts_remaining,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	WriteErrorDetail(w, statusCode, ErrorDetail{ReasonCode: reasonCode, Message: message})
}

// WriteErrorDetail writes an error envelope with optional extra fields.
// Code is always derived from statusCode.
func WriteErrorDetail(w http.ResponseWriter, statusCode int, d ErrorDetail) {
	d.Code = http.StatusText(statusCode)
	WriteJSON(w, statusCode, ErrorEnvelope{Error: d})
}

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteTooManyRequests writes a 429 Too Many Requests error.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// Be careful not to leak sensitive information in the message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}
