// Package config provides configuration loading and parsing for aoai-relay.
package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/omarluq/aoai-relay/internal/cache"
)

// RuntimeConfig defines the interface for accessing runtime configuration
// that supports hot-reload. Components that need to observe config changes
// should use this interface instead of holding a direct *Config pointer,
// which would become stale after hot-reload.
type RuntimeConfig interface {
	Get() *Config
}

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Defaults for the limits section.
const (
	DefaultGlobalRPS   = 8.0
	DefaultUserRPS     = 2.0
	DefaultMaxParallel = 8
)

// Config represents the complete aoai-relay configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Limits   LimitsConfig   `yaml:"limits" toml:"limits"`
	Upstream UpstreamConfig `yaml:"upstream" toml:"upstream"`
	Secrets  SecretsConfig  `yaml:"secrets" toml:"secrets"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Cache    cache.Config   `yaml:"cache" toml:"cache"`
}

// ServerConfig defines server-level settings.
type ServerConfig struct {
	Listen       string `yaml:"listen" toml:"listen"`
	TimeoutMS    int    `yaml:"timeout_ms" toml:"timeout_ms"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" toml:"max_body_bytes"`
	EnableHTTP2  bool   `yaml:"enable_http2" toml:"enable_http2"` // HTTP/2 cleartext (h2c) support
}

// GetTimeoutOption returns the request timeout as an Option.
// Returns None if TimeoutMS is zero (use default).
func (s *ServerConfig) GetTimeoutOption() mo.Option[time.Duration] {
	if s.TimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(s.TimeoutMS) * time.Millisecond)
}

// GetMaxBodyBytesOption returns the request body cap as an Option.
// Returns None if MaxBodyBytes is zero (use default).
func (s *ServerConfig) GetMaxBodyBytesOption() mo.Option[int64] {
	if s.MaxBodyBytes <= 0 {
		return mo.None[int64]()
	}
	return mo.Some(s.MaxBodyBytes)
}

// LimitsConfig defines admission-control settings: rate limits, the
// concurrency bound, and request validation bounds.
type LimitsConfig struct {
	// GlobalRPS is the shared requests-per-second budget across all callers.
	GlobalRPS float64 `yaml:"global_rps" toml:"global_rps"`

	// UserRPS is the per-caller requests-per-second budget.
	UserRPS float64 `yaml:"user_rps" toml:"user_rps"`

	// MaxParallel bounds simultaneous upstream calls.
	MaxParallel int `yaml:"max_parallel" toml:"max_parallel"`

	// GateWaitMS bounds how long a request may queue for a permit before
	// it is rejected as overloaded. Zero means wait indefinitely.
	GateWaitMS int `yaml:"gate_wait_ms" toml:"gate_wait_ms"`

	// Request validation bounds.
	MaxMessages   int `yaml:"max_messages" toml:"max_messages"`
	MaxMessageLen int `yaml:"max_message_len" toml:"max_message_len"`
	MaxTokensCap  int `yaml:"max_tokens_cap" toml:"max_tokens_cap"`

	// AllowedOrigins is the caller origin allow-list. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// GetEffectiveGlobalRPS returns the global rate with default fallback.
func (l *LimitsConfig) GetEffectiveGlobalRPS() float64 {
	if l.GlobalRPS <= 0 {
		return DefaultGlobalRPS
	}
	return l.GlobalRPS
}

// GetEffectiveUserRPS returns the per-user rate with default fallback.
func (l *LimitsConfig) GetEffectiveUserRPS() float64 {
	if l.UserRPS <= 0 {
		return DefaultUserRPS
	}
	return l.UserRPS
}

// GetEffectiveMaxParallel returns the concurrency bound with default fallback.
func (l *LimitsConfig) GetEffectiveMaxParallel() int {
	if l.MaxParallel <= 0 {
		return DefaultMaxParallel
	}
	return l.MaxParallel
}

// GetGateWaitOption returns the permit-wait bound as an Option.
// Returns None if GateWaitMS is zero (unbounded wait).
func (l *LimitsConfig) GetGateWaitOption() mo.Option[time.Duration] {
	if l.GateWaitMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(l.GateWaitMS) * time.Millisecond)
}

// UpstreamConfig defines retry and circuit-breaker behavior for the
// upstream chat-completion provider.
type UpstreamConfig struct {
	MaxRetries       int    `yaml:"max_retries" toml:"max_retries"`
	BaseBackoffMS    int    `yaml:"base_backoff_ms" toml:"base_backoff_ms"`
	MaxBackoffMS     int    `yaml:"max_backoff_ms" toml:"max_backoff_ms"`
	NetworkBackoffMS int    `yaml:"network_backoff_ms" toml:"network_backoff_ms"`
	APIVersion       string `yaml:"api_version" toml:"api_version"`

	Breaker BreakerConfig `yaml:"breaker" toml:"breaker"`
}

// BreakerConfig tunes the upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold" toml:"failure_threshold"`
	OpenSeconds      int    `yaml:"open_seconds" toml:"open_seconds"`
}

// GetBaseBackoffOption returns the base backoff as an Option.
func (u *UpstreamConfig) GetBaseBackoffOption() mo.Option[time.Duration] {
	if u.BaseBackoffMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(u.BaseBackoffMS) * time.Millisecond)
}

// GetMaxBackoffOption returns the backoff ceiling as an Option.
func (u *UpstreamConfig) GetMaxBackoffOption() mo.Option[time.Duration] {
	if u.MaxBackoffMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(u.MaxBackoffMS) * time.Millisecond)
}

// GetNetworkBackoffOption returns the network-failure backoff ceiling as
// an Option.
func (u *UpstreamConfig) GetNetworkBackoffOption() mo.Option[time.Duration] {
	if u.NetworkBackoffMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(u.NetworkBackoffMS) * time.Millisecond)
}

// Secret mode constants.
const (
	SecretModeStatic = "static"
	SecretModeOAuth  = "oauth"
)

// SecretsConfig defines how the upstream credential is resolved.
// Values support ${ENV_VAR} expansion at load time.
type SecretsConfig struct {
	// Mode selects the credential source: static (default) or oauth.
	Mode string `yaml:"mode" toml:"mode"`

	// Endpoint is the upstream base URL.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// APIKey is the static upstream key. Used when Mode is static.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// OAuth configures client-credential token exchange. Used when Mode
	// is oauth.
	OAuth OAuthConfig `yaml:"oauth" toml:"oauth"`
}

// OAuthConfig defines client-credentials token exchange settings.
type OAuthConfig struct {
	TokenURL     string `yaml:"token_url" toml:"token_url"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	Scope        string `yaml:"scope" toml:"scope"`
}

// GetEffectiveMode returns the secret mode with default fallback.
func (s *SecretsConfig) GetEffectiveMode() string {
	if s.Mode == "" {
		return SecretModeStatic
	}
	return s.Mode
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, console
	Output string `yaml:"output" toml:"output"` // stdout, stderr, or file path
	Pretty bool   `yaml:"pretty" toml:"pretty"` // colored console output
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
