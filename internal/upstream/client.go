package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/omarluq/aoai-relay/internal/secrets"
)

// DefaultAPIVersion is the provider API version used when unconfigured.
const DefaultAPIVersion = "2024-06-01"

// maxErrorBodyBytes bounds how much of an upstream error body is read.
const maxErrorBodyBytes = 64 << 10 // 64 KiB

// Config tunes the retry state machine.
type Config struct {
	// MaxRetries is the attempt budget per logical call (default 6).
	MaxRetries int

	// BaseBackoff is the first attempt's backoff (default 500ms).
	BaseBackoff time.Duration

	// MaxBackoff caps HTTP-status backoff growth (default 15s).
	MaxBackoff time.Duration

	// NetworkBackoff caps backoff for network-level failures (default 2s).
	NetworkBackoff time.Duration

	// APIVersion is the api-version query parameter value.
	APIVersion string

	// Breaker tunes the circuit breaker.
	Breaker BreakerConfig
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.NetworkBackoff <= 0 {
		c.NetworkBackoff = DefaultNetworkBackoff
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	return c
}

// Client executes chat-completion calls with bounded retries. Retries
// happen entirely inside one Complete call: the caller keeps its
// concurrency permit across attempts and never re-queues.
// All methods are safe for concurrent use.
type Client struct {
	httpClient *http.Client
	provider   secrets.Provider
	breaker    *Breaker
	cfg        Config

	// sleep and jitter are injectable so tests run without real timers.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// New creates a Client over a keep-alive HTTP transport.
func New(provider secrets.Provider, cfg Config) *Client {
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32

	return &Client{
		httpClient: &http.Client{Transport: transport},
		provider:   provider,
		breaker:    NewBreaker(cfg.Breaker),
		cfg:        cfg,
		sleep:      sleepCtx,
		jitter:     defaultJitter,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ready reports whether the circuit breaker would admit a call right
// now. The orchestrator checks this before spending a concurrency
// permit; it is advisory and racy by nature.
func (c *Client) Ready() bool {
	return c.breaker.State() != StateOpen
}

// BreakerState returns the circuit breaker state for diagnostics.
func (c *Client) BreakerState() State {
	return c.breaker.State()
}

// Complete executes one logical chat-completion call for the given
// deployment. body must be the sanitized request JSON. On success it
// returns the upstream response payload verbatim. Failures are returned
// as *Error; resolution failures and context errors pass through.
func (c *Client) Complete(ctx context.Context, body []byte, deployment, traceID string) ([]byte, error) {
	done, err := c.breaker.Allow()
	if err != nil {
		return nil, err
	}

	payload, callErr := c.complete(ctx, body, deployment, traceID)
	done(breakerVerdict(callErr))
	return payload, callErr
}

// breakerVerdict maps a call outcome to the breaker's success/failure
// signal. Fatal 4xx means the provider answered, so only network
// failures and exhausted retry budgets count against the breaker.
func breakerVerdict(err error) error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) && !ue.Exhausted && ue.Status != 0 {
		return nil
	}
	return err
}

func (c *Client) complete(ctx context.Context, body []byte, deployment, traceID string) ([]byte, error) {
	cred, err := c.provider.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	target, err := completionURL(cred.Endpoint, deployment, c.cfg.APIVersion)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().
		Str("deployment", deployment).
		Str("trace_id", traceID).
		Logger()

	var lastErr *Error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		payload, attemptErr := c.attempt(ctx, target, cred, body)
		if attemptErr == nil {
			logger.Debug().Int("attempt", attempt).Msg("upstream call succeeded")
			return payload, nil
		}

		attemptErr.Attempts = attempt
		if !attemptErr.Retryable {
			logger.Warn().
				Int("attempt", attempt).
				Int("status", attemptErr.Status).
				Msg("upstream call failed, not retryable")
			return nil, attemptErr
		}

		lastErr = attemptErr
		if attempt == c.cfg.MaxRetries {
			break
		}

		wait := c.waitFor(attempt, attemptErr)
		logger.Warn().
			Int("attempt", attempt).
			Int("status", attemptErr.Status).
			Dur("wait", wait).
			Msg("upstream call failed, retrying")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	lastErr.Exhausted = true
	logger.Error().
		Int("attempts", lastErr.Attempts).
		Int("status", lastErr.Status).
		Msg("upstream retry budget exhausted")
	return nil, lastErr
}

// waitFor computes the pre-sleep for the next attempt. An explicit
// Retry-After hint is honored exactly; otherwise exponential backoff
// plus additive jitter applies, with a shorter cap for network errors.
func (c *Client) waitFor(attempt int, attemptErr *Error) time.Duration {
	if attemptErr.RetryAfter > 0 {
		return attemptErr.RetryAfter
	}

	ceiling := c.cfg.MaxBackoff
	if attemptErr.Status == 0 {
		ceiling = c.cfg.NetworkBackoff
	}
	return backoffFor(attempt, c.cfg.BaseBackoff, ceiling) + c.jitter()
}

// attempt performs a single HTTP round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, target string, cred secrets.Credential, body []byte) ([]byte, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: truncateMessage(err.Error())}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(cred.Header, cred.Value)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failure: no HTTP status, retryable.
		return nil, &Error{
			Message:   truncateMessage(err.Error()),
			Retryable: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		payload, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &Error{
				Message:   truncateMessage(readErr.Error()),
				Retryable: true,
			}
		}
		return payload, nil
	}

	return nil, classifyResponse(resp)
}

// classifyResponse turns a non-2xx response into a classified Error.
func classifyResponse(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	message := gjson.GetBytes(raw, "error.message").Str
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &Error{
		Status:     resp.StatusCode,
		Code:       gjson.GetBytes(raw, "error.code").Str,
		Message:    truncateMessage(message),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Retryable:  retryableStatus(resp.StatusCode),
	}
}

// parseRetryAfter reads a Retry-After header value in seconds.
// Malformed or negative values are treated as absent.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// completionURL builds the deployment-scoped chat-completions URL.
func completionURL(endpoint, deployment, apiVersion string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("upstream: invalid endpoint: %w", err)
	}

	base = base.JoinPath("openai", "deployments", deployment, "chat", "completions")
	query := base.Query()
	query.Set("api-version", apiVersion)
	base.RawQuery = query.Encode()
	return base.String(), nil
}
