package config

import (
	"github.com/omarluq/aoai-relay/internal/cache"
)

// FormatForPath exports formatForPath for testing.
var FormatForPath = formatForPath

// SplitOrigins exports splitOrigins for testing.
var SplitOrigins = splitOrigins

// Test helpers with all fields initialized for exhaustruct compliance.

// MakeTestConfig returns a minimal valid Config with all fields set.
func MakeTestConfig() *Config {
	return &Config{
		Server:   MakeTestServerConfig(),
		Limits:   MakeTestLimitsConfig(),
		Upstream: MakeTestUpstreamConfig(),
		Secrets:  MakeTestSecretsConfig(),
		Logging:  MakeTestLoggingConfig(),
		Cache:    MakeTestCacheConfig(),
	}
}

// MakeTestServerConfig returns a minimal ServerConfig with all fields set.
func MakeTestServerConfig() ServerConfig {
	return ServerConfig{
		Listen:       "127.0.0.1:8787",
		TimeoutMS:    60000,
		MaxBodyBytes: 0,
		EnableHTTP2:  false,
	}
}

// MakeTestLimitsConfig returns a minimal LimitsConfig with all fields set.
func MakeTestLimitsConfig() LimitsConfig {
	return LimitsConfig{
		GlobalRPS:      8,
		UserRPS:        2,
		MaxParallel:    8,
		GateWaitMS:     0,
		MaxMessages:    50,
		MaxMessageLen:  4000,
		MaxTokensCap:   4000,
		AllowedOrigins: []string{},
	}
}

// MakeTestUpstreamConfig returns a minimal UpstreamConfig with all fields set.
func MakeTestUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		MaxRetries:       6,
		BaseBackoffMS:    500,
		MaxBackoffMS:     15000,
		NetworkBackoffMS: 2000,
		APIVersion:       "",
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenSeconds:      30,
		},
	}
}

// MakeTestSecretsConfig returns a minimal SecretsConfig with all fields set.
func MakeTestSecretsConfig() SecretsConfig {
	return SecretsConfig{
		Mode:     SecretModeStatic,
		Endpoint: "https://example.openai.azure.com",
		APIKey:   "sk-test",
		OAuth: OAuthConfig{
			TokenURL:     "",
			ClientID:     "",
			ClientSecret: "",
			Scope:        "",
		},
	}
}

// MakeTestLoggingConfig returns a minimal LoggingConfig with all fields set.
func MakeTestLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
		Pretty: false,
	}
}

// MakeTestCacheConfig returns a minimal cache.Config with all fields set.
func MakeTestCacheConfig() cache.Config {
	return cache.Config{
		Backend: cache.BackendMemory,
		Ristretto: cache.RistrettoConfig{
			NumCounters: 0,
			MaxCost:     0,
			BufferItems: 0,
		},
	}
}
