package proxy_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/omarluq/aoai-relay/internal/cache"
	"github.com/omarluq/aoai-relay/internal/config"
	"github.com/omarluq/aoai-relay/internal/proxy"
	"github.com/omarluq/aoai-relay/internal/secrets"
)

func newTestRouter(t *testing.T, cfg *config.Config) (http.Handler, *fixture) {
	t.Helper()

	f := newFixture(t, cfg)

	store := cache.NewMemoryWithClock(f.clock.Now)
	t.Cleanup(func() { _ = store.Close() })

	provider := secrets.NewStatic("https://example.openai.azure.com", "sk-test")
	diag := proxy.NewDiag(
		f.global, f.perUser, f.gate, f.idem, store,
		provider.Presence,
		func() string { return "closed" },
	)

	return proxy.NewRouter(f.handler, diag, f.runtime), f
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, testConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.GetBytes(rec.Body.Bytes(), "status").Str)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_ChatHappyPath(t *testing.T) {
	t.Parallel()

	router, f := newTestRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, gjson.GetBytes(rec.Body.Bytes(), "success").Bool())
	assert.Equal(t, 1, f.client.callCount())
}

func TestRouter_Diag(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, testConfig())

	// One chat request so the global bucket exists.
	router.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(validBody)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diag", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.Bytes()
	assert.Equal(t, int64(8), gjson.GetBytes(body, "gate.max_permits").Int())
	assert.Equal(t, "closed", gjson.GetBytes(body, "breaker").Str)
	assert.Equal(t, "global", gjson.GetBytes(body, "global_buckets.0.key").Str)

	// Presence only, never secret values.
	assert.True(t, gjson.GetBytes(body, "secrets.endpoint").Bool())
	assert.True(t, gjson.GetBytes(body, "secrets.key").Bool())
	assert.NotContains(t, rec.Body.String(), "sk-test")
}

func TestRouter_OriginDeniedBeforeCapacity(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Limits.UserRPS = 100 // keep the per-user bucket out of the way
	cfg.Limits.AllowedOrigins = []string{"https://app.example"}
	router, f := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(validBody))
	req.Header.Set("Origin", "https://evil.example")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, f.client.callCount())

	// The denial consumed no rate-limit tokens: 8 more requests still pass.
	for i := 0; i < 8; i++ {
		ok := httptest.NewRecorder()
		router.ServeHTTP(ok, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(validBody)))
		require.Equal(t, http.StatusOK, ok.Code, "request %d", i+1)
	}
}

func TestRouter_OriginAllowListHotReload(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Limits.AllowedOrigins = []string{"https://app.example"}
	router, f := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(validBody))
	req.Header.Set("Origin", "https://new.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Storing a new config takes effect on the next request.
	updated := testConfig()
	updated.Limits.AllowedOrigins = []string{"https://new.example"}
	f.runtime.Store(updated)

	req = httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(validBody))
	req.Header.Set("Origin", "https://new.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Preflight(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://app.example")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRouter_BodyTooLarge(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 32
	router, f := newTestRouter(t, cfg)

	huge := `{"destination":"gpt-4o","messages":[{"role":"user","content":"` +
		strings.Repeat("x", 128) + `"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(huge)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, f.client.callCount())
}

func TestRouter_UnknownRoute(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, testConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Wrong method on a known path.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
