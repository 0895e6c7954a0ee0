package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/omarluq/aoai-relay/internal/config"
	"github.com/omarluq/aoai-relay/internal/gate"
	"github.com/omarluq/aoai-relay/internal/idempotency"
	"github.com/omarluq/aoai-relay/internal/ratelimit"
	"github.com/omarluq/aoai-relay/internal/upstream"
	"github.com/omarluq/aoai-relay/internal/validate"
)

// Request headers recognized by the orchestrator.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderUserID         = "X-User-Id"
)

// GlobalBucketKey is the rate-limit key shared by all callers.
const GlobalBucketKey = "global"

// anonymousUser partitions callers that send no identity header.
const anonymousUser = "anonymous"

// maxUpstreamDetail caps the upstream error detail surfaced to callers.
const maxUpstreamDetail = 300

// Completer executes one logical chat-completion call. Satisfied by
// *upstream.Client; narrowed to an interface so handler tests can
// script outcomes.
type Completer interface {
	Complete(ctx context.Context, body []byte, deployment, traceID string) ([]byte, error)
	Ready() bool
}

// Handler orchestrates a chat request through admission control and the
// upstream call: origin (middleware) -> rate limits -> idempotency ->
// validation -> concurrency gate -> upstream -> cache -> respond.
type Handler struct {
	runtime config.RuntimeConfig
	global  *ratelimit.KeyedLimiter
	perUser *ratelimit.KeyedLimiter
	gate    *gate.Gate
	client  Completer
	idem    *idempotency.Store
}

// NewHandler wires the orchestrator from its collaborators.
func NewHandler(
	runtime config.RuntimeConfig,
	global, perUser *ratelimit.KeyedLimiter,
	g *gate.Gate,
	client Completer,
	idem *idempotency.Store,
) *Handler {
	return &Handler{
		runtime: runtime,
		global:  global,
		perUser: perUser,
		gate:    g,
		client:  client,
		idem:    idem,
	}
}

// ServeHTTP handles POST /chat.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	user := callerID(r)

	// Rate limits are checked before any body parsing cost is paid.
	// Both partitions must admit the request.
	if !h.global.Allow(GlobalBucketKey, 1) {
		logger.Warn().Str("bucket", GlobalBucketKey).Msg("request throttled")
		WriteThrottled(w, RetryAfterThrottled*time.Second,
			"global rate limit exceeded, retry shortly")
		return
	}
	if !h.perUser.Allow("user:"+user, 1) {
		logger.Warn().Str("bucket", "user").Msg("request throttled")
		WriteThrottled(w, RetryAfterThrottled*time.Second,
			"per-user rate limit exceeded, retry shortly")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if IsBodyTooLargeError(err) {
			WriteBodyTooLargeError(w)
			return
		}
		WriteError(w, http.StatusBadRequest, ErrTypeValidation, "unable to read request body")
		return
	}

	if len(body) == 0 || !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		WriteError(w, http.StatusBadRequest, ErrTypeValidation, "request body must be a JSON object")
		return
	}

	destination := gjson.GetBytes(body, "destination").Str
	if destination == "" {
		WriteError(w, http.StatusBadRequest, ErrTypeValidation, "destination is required")
		return
	}

	// A live idempotency hit bypasses validation and never touches the
	// gate; the rate-limit cost above was already paid.
	idemKey := r.Header.Get(HeaderIdempotencyKey)
	if idemKey != "" {
		cached, ok, err := h.idem.Get(ctx, user, idemKey)
		if err == nil && ok {
			logger.Debug().Msg("idempotency cache hit")
			WriteSuccess(w, cached)
			return
		}
		if err != nil {
			logger.Warn().Err(err).Msg("idempotency lookup failed, treating as miss")
		}
	}

	cfg := h.runtime.Get()
	sanitized, err := validate.Sanitize(body, validate.Limits{
		MaxMessages:   cfg.Limits.MaxMessages,
		MaxContentLen: cfg.Limits.MaxMessageLen,
		MaxTokensCap:  cfg.Limits.MaxTokensCap,
	})
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrTypeValidation, err.Error())
		return
	}

	payload, err := sanitized.JSON()
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode sanitized request")
		WriteError(w, http.StatusInternalServerError, ErrTypeInternal, "internal error")
		return
	}

	// Advisory breaker check before a permit is spent on a call that
	// would be rejected anyway.
	if !h.client.Ready() {
		WriteError(w, http.StatusServiceUnavailable, ErrTypeOverloaded,
			"upstream is unavailable, retry later")
		return
	}

	if ok := h.acquirePermit(ctx, w, cfg); !ok {
		return
	}
	defer h.gate.Release()

	result, err := h.client.Complete(ctx, payload, destination, GetRequestID(ctx))
	if err != nil {
		h.writeUpstreamError(w, logger, err)
		return
	}

	if idemKey != "" {
		if err := h.idem.Put(ctx, user, idemKey, result); err != nil {
			logger.Warn().Err(err).Msg("failed to store idempotent response")
		}
	}

	WriteSuccess(w, result)
}

// acquirePermit waits for a concurrency permit, bounded by the
// configured gate wait. Reports false after writing the response when
// the permit was not obtained.
func (h *Handler) acquirePermit(ctx context.Context, w http.ResponseWriter, cfg *config.Config) bool {
	acquireCtx := ctx
	if wait, ok := cfg.Limits.GetGateWaitOption().Get(); ok {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	err := h.gate.Acquire(acquireCtx)
	if err == nil {
		return true
	}

	// The caller went away; nothing useful to write.
	if ctx.Err() != nil {
		return false
	}

	WriteError(w, http.StatusServiceUnavailable, ErrTypeOverloaded,
		"server is at capacity, retry later")
	return false
}

// writeUpstreamError maps a classified upstream failure onto the
// caller-facing envelope.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	if errors.Is(err, upstream.ErrCircuitOpen) {
		WriteError(w, http.StatusServiceUnavailable, ErrTypeOverloaded,
			"upstream is unavailable, retry later")
		return
	}

	var ue *upstream.Error
	if !errors.As(err, &ue) {
		logger.Error().Err(err).Msg("unclassified upstream failure")
		WriteError(w, http.StatusInternalServerError, ErrTypeInternal, "internal error")
		return
	}

	switch {
	case ue.IsContentPolicy():
		// Surfaced distinctly so the caller can skip or flag the item
		// instead of retrying.
		WriteErrorDetail(w, http.StatusBadRequest, ErrTypeContentPolicy,
			"request rejected by upstream content policy", truncateDetail(ue.Message))

	case ue.Exhausted, ue.Status == http.StatusTooManyRequests, ue.Status >= 500:
		w.Header().Set("Retry-After", "5")
		WriteError(w, http.StatusTooManyRequests, ErrTypeThrottled,
			"upstream is throttling requests, retry later")

	default:
		// Fatal upstream 4xx.
		WriteErrorDetail(w, http.StatusBadGateway, ErrTypeUpstream,
			"upstream rejected the request", truncateDetail(ue.Message))
	}
}

func truncateDetail(detail string) string {
	if len(detail) > maxUpstreamDetail {
		return detail[:maxUpstreamDetail]
	}
	return detail
}

// callerID returns the rate-limit identity for the request. Identity is
// a caller-supplied label used only for partitioning, never for auth.
func callerID(r *http.Request) string {
	if id := r.Header.Get(HeaderUserID); id != "" {
		return id
	}
	return anonymousUser
}
