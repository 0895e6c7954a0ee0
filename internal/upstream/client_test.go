package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/aoai-relay/internal/secrets"
)

// scriptedResponse is one canned upstream reply.
type scriptedResponse struct {
	status     int
	body       string
	retryAfter string
}

// scriptedServer replays responses in order and records requests.
type scriptedServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses []scriptedResponse
	requests  []*http.Request
}

func newScriptedServer(t *testing.T, responses ...scriptedResponse) *scriptedServer {
	t.Helper()

	s := &scriptedServer{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Clone(context.Background()))
		var resp scriptedResponse
		if len(s.responses) > 0 {
			resp = s.responses[0]
			s.responses = s.responses[1:]
		} else {
			resp = scriptedResponse{status: http.StatusOK, body: `{}`}
		}
		s.mu.Unlock()

		if resp.retryAfter != "" {
			w.Header().Set("Retry-After", resp.retryAfter)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *scriptedServer) hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// newTestClient builds a client against endpoint with recorded sleeps
// and zero jitter.
func newTestClient(endpoint string, cfg Config) (*Client, *[]time.Duration) {
	client := New(secrets.NewStatic(endpoint, "sk-test"), cfg)

	var sleeps []time.Duration
	client.SetSleep(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	})
	client.SetJitter(func() time.Duration { return 0 })
	return client, &sleeps
}

func TestComplete_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	server := newScriptedServer(t, scriptedResponse{status: 200, body: `{"choices":[{"message":{"content":"hi"}}]}`})
	client, sleeps := newTestClient(server.URL, Config{})

	payload, err := client.Complete(context.Background(), []byte(`{"messages":[]}`), "gpt-4o", "trace-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"choices":[{"message":{"content":"hi"}}]}`, string(payload))
	assert.Equal(t, 1, server.hits())
	assert.Empty(t, *sleeps)

	// Credential and body reach the upstream; the secret header is api-key.
	server.mu.Lock()
	req := server.requests[0]
	server.mu.Unlock()
	assert.Equal(t, "sk-test", req.Header.Get("api-key"))
	assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", req.URL.Path)
	assert.Equal(t, "2024-06-01", req.URL.Query().Get("api-version"))
}

func TestComplete_RetryAfterThenBackoffThenSuccess(t *testing.T) {
	t.Parallel()

	server := newScriptedServer(t,
		scriptedResponse{status: 429, body: `{"error":{"message":"slow down"}}`, retryAfter: "1"},
		scriptedResponse{status: 500, body: `{"error":{"message":"boom"}}`},
		scriptedResponse{status: 200, body: `{"id":"ok"}`},
	)
	client, sleeps := newTestClient(server.URL, Config{})

	payload, err := client.Complete(context.Background(), []byte(`{}`), "gpt-4o", "trace-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"ok"}`, string(payload))
	assert.Equal(t, 3, server.hits())

	require.Len(t, *sleeps, 2)
	// Retry-After is honored exactly, with no jitter added.
	assert.Equal(t, time.Second, (*sleeps)[0])
	// Second wait follows the backoff schedule: base * 2^(2-1).
	assert.Equal(t, time.Second, (*sleeps)[1])
}

func TestComplete_FatalNoRetry(t *testing.T) {
	t.Parallel()

	for _, status := range []int{400, 401, 403, 404} {
		server := newScriptedServer(t,
			scriptedResponse{status: status, body: `{"error":{"message":"denied","code":"denied"}}`})
		client, sleeps := newTestClient(server.URL, Config{})

		_, err := client.Complete(context.Background(), []byte(`{}`), "gpt-4o", "t")
		var ue *Error
		require.ErrorAs(t, err, &ue, "status %d", status)
		assert.Equal(t, status, ue.Status)
		assert.False(t, ue.Retryable)
		assert.False(t, ue.Exhausted)
		assert.Equal(t, 1, ue.Attempts)
		assert.Equal(t, "denied", ue.Message)
		assert.Equal(t, 1, server.hits(), "status %d should not be retried", status)
		assert.Empty(t, *sleeps)
	}
}

func TestComplete_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	responses := make([]scriptedResponse, 6)
	for i := range responses {
		responses[i] = scriptedResponse{status: 503, body: `{"error":{"message":"unavailable"}}`}
	}
	server := newScriptedServer(t, responses...)
	client, sleeps := newTestClient(server.URL, Config{MaxRetries: 6})

	_, err := client.Complete(context.Background(), []byte(`{}`), "gpt-4o", "t")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.True(t, ue.Retryable)
	assert.True(t, ue.Exhausted)
	assert.Equal(t, 6, ue.Attempts)
	assert.Equal(t, 503, ue.Status)
	assert.Equal(t, 6, server.hits())

	// 5 sleeps between 6 attempts, strictly doubling from base.
	require.Len(t, *sleeps, 5)
	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	}
	assert.Equal(t, want, *sleeps)
}

func TestComplete_NetworkErrorsUseShorterCap(t *testing.T) {
	t.Parallel()

	// Point at a server that is already closed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	endpoint := server.URL
	server.Close()

	client, sleeps := newTestClient(endpoint, Config{MaxRetries: 4})

	_, err := client.Complete(context.Background(), []byte(`{}`), "gpt-4o", "t")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 0, ue.Status)
	assert.True(t, ue.Retryable)
	assert.True(t, ue.Exhausted)
	assert.Equal(t, 4, ue.Attempts)

	// Network backoff caps at 2s instead of 15s.
	require.Len(t, *sleeps, 3)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, *sleeps)
}

func TestComplete_ContentPolicyDetected(t *testing.T) {
	t.Parallel()

	body := `{"error":{"code":"content_filter","message":"The response was filtered due to the prompt triggering the content management policy."}}`
	server := newScriptedServer(t, scriptedResponse{status: 400, body: body})
	client, _ := newTestClient(server.URL, Config{})

	_, err := client.Complete(context.Background(), []byte(`{}`), "gpt-4o", "t")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.True(t, ue.IsContentPolicy())
}

func TestComplete_SecretResolutionFailurePassesThrough(t *testing.T) {
	t.Parallel()

	client := New(secrets.NewStatic("", ""), Config{})

	_, err := client.Complete(context.Background(), []byte(`{}`), "gpt-4o", "t")
	assert.ErrorIs(t, err, secrets.ErrEndpointMissing)
}

func TestComplete_SleepCanceledStopsRetrying(t *testing.T) {
	t.Parallel()

	server := newScriptedServer(t,
		scriptedResponse{status: 500, body: `{}`},
		scriptedResponse{status: 200, body: `{}`},
	)
	client := New(secrets.NewStatic(server.URL, "sk-test"), Config{})
	client.SetJitter(func() time.Duration { return 0 })
	client.SetSleep(func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	})

	_, err := client.Complete(context.Background(), []byte(`{}`), "gpt-4o", "t")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, server.hits())
}

func TestComplete_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	endpoint := server.URL
	server.Close() // every call is a network failure

	client, _ := newTestClient(endpoint, Config{
		MaxRetries: 1,
		Breaker:    BreakerConfig{FailureThreshold: 2, OpenSeconds: 60},
	})
	require.True(t, client.Ready())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.Complete(ctx, []byte(`{}`), "gpt-4o", "t")
		var ue *Error
		require.ErrorAs(t, err, &ue)
	}

	assert.False(t, client.Ready())
	assert.Equal(t, StateOpen, client.BreakerState())

	_, err := client.Complete(ctx, []byte(`{}`), "gpt-4o", "t")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestComplete_FatalDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	responses := make([]scriptedResponse, 10)
	for i := range responses {
		responses[i] = scriptedResponse{status: 401, body: `{"error":{"message":"bad key"}}`}
	}
	server := newScriptedServer(t, responses...)
	client, _ := newTestClient(server.URL, Config{
		Breaker: BreakerConfig{FailureThreshold: 2, OpenSeconds: 60},
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := client.Complete(ctx, []byte(`{}`), "gpt-4o", "t")
		var ue *Error
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, 401, ue.Status)
	}

	// The provider answered every time, so the circuit stays closed.
	assert.Equal(t, StateClosed, client.BreakerState())
	assert.True(t, client.Ready())
}
