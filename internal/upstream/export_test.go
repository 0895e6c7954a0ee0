package upstream

import (
	"context"
	"time"
)

// BackoffFor exports backoffFor for testing.
var BackoffFor = backoffFor

// ParseRetryAfter exports parseRetryAfter for testing.
var ParseRetryAfter = parseRetryAfter

// CompletionURL exports completionURL for testing.
var CompletionURL = completionURL

// SetSleep replaces the client's sleep function (for testing).
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// SetJitter replaces the client's jitter source (for testing).
func (c *Client) SetJitter(fn func() time.Duration) {
	c.jitter = fn
}
