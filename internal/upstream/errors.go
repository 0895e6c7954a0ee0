// Package upstream executes chat-completion calls against the provider
// with bounded retries, exponential backoff, jitter, and Retry-After
// compliance.
package upstream

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("upstream: circuit breaker is open")

// contentPolicyMarker is the provider's phrase identifying a content
// management policy rejection inside an otherwise generic 400.
const contentPolicyMarker = "content management policy"

// maxStoredMessage caps how much upstream detail an Error retains.
const maxStoredMessage = 2000

// Error is a classified upstream failure.
type Error struct {
	// Status is the upstream HTTP status, or 0 for network-level failures.
	Status int

	// Code is the upstream error code when the body carried one.
	Code string

	// Message is the upstream error detail, capped at maxStoredMessage.
	// It never contains relayed request content.
	Message string

	// RetryAfter is the upstream's Retry-After hint, 0 when absent.
	RetryAfter time.Duration

	// Retryable marks 429/5xx/network failures.
	Retryable bool

	// Exhausted marks a retryable failure that consumed the attempt budget.
	Exhausted bool

	// Attempts is the number of attempts made for this logical call.
	Attempts int
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("upstream: network failure after %d attempt(s): %s", e.Attempts, e.Message)
	case e.Exhausted:
		return fmt.Sprintf("upstream: status %d after %d attempt(s): %s", e.Status, e.Attempts, e.Message)
	default:
		return fmt.Sprintf("upstream: status %d: %s", e.Status, e.Message)
	}
}

// IsContentPolicy reports whether the failure is the provider's content
// policy rejection, which callers surface distinctly so clients can skip
// the item rather than retry it.
func (e *Error) IsContentPolicy() bool {
	if e.Code == "content_filter" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), contentPolicyMarker)
}

// retryableStatus reports whether an HTTP status is worth retrying:
// 429 and any 5xx. All other non-2xx statuses are fatal.
func retryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}

func truncateMessage(msg string) string {
	if len(msg) > maxStoredMessage {
		return msg[:maxStoredMessage]
	}
	return msg
}
