// Package proxy implements the HTTP surface for aoai-relay: the request
// orchestrator, middleware, routes, and the response envelope.
package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Error type markers carried in the errorType field so callers can
// branch without parsing messages.
const (
	ErrTypeValidation    = "validation_error"
	ErrTypeOriginDenied  = "origin_denied"
	ErrTypeThrottled     = "throttled"
	ErrTypeOverloaded    = "overloaded"
	ErrTypeUpstream      = "upstream_error"
	ErrTypeContentPolicy = "content_policy"
	ErrTypeTooLarge      = "request_too_large"
	ErrTypeInternal      = "internal_error"
)

// Retry-After hints, in seconds.
const (
	RetryAfterThrottled = 2 // self-imposed rate limit
	RetryAfterUpstream  = 5 // upstream throttling or exhausted retries
)

// SuccessResponse wraps an upstream payload for the caller.
type SuccessResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// ErrorResponse is the stable error envelope. Every error response
// carries success:false so callers can branch on one field.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// WriteSuccess writes a 200 response wrapping the upstream payload.
func WriteSuccess(w http.ResponseWriter, payload []byte) {
	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    json.RawMessage(payload),
	})
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, statusCode int, errorType, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorType: errorType,
	})
}

// WriteErrorDetail writes a JSON error envelope with a detail string.
func WriteErrorDetail(w http.ResponseWriter, statusCode int, errorType, message, detail string) {
	writeJSON(w, statusCode, ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorType: errorType,
		Detail:    detail,
	})
}

// WriteThrottled writes a 429 response with a Retry-After header.
func WriteThrottled(w http.ResponseWriter, retryAfter time.Duration, message string) {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))

	WriteError(w, http.StatusTooManyRequests, ErrTypeThrottled, message)
}

// IsBodyTooLargeError checks if an error is from http.MaxBytesReader.
func IsBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// WriteBodyTooLargeError writes a 413 Request Entity Too Large response.
func WriteBodyTooLargeError(w http.ResponseWriter) {
	WriteError(w, http.StatusRequestEntityTooLarge, ErrTypeTooLarge,
		"Request body exceeds the maximum allowed size")
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
