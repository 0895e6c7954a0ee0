package config

import (
	"net"
	"net/url"
	"strings"
)

// Valid secret modes.
var validSecretModes = map[string]bool{
	"":               true, // Empty defaults to static
	SecretModeStatic: true,
	SecretModeOAuth:  true,
}

// Valid logging levels.
var validLogLevels = map[string]bool{
	"":      true, // Empty defaults to info
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid logging formats.
var validLogFormats = map[string]bool{
	"":        true, // Empty defaults to json
	"json":    true,
	"console": true,
	"text":    true, // Alias for console
	"pretty":  true,
}

// Validate checks the configuration for errors.
// Returns a ValidationError containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateServer(c, errs)
	validateLimits(c, errs)
	validateUpstream(c, errs)
	validateSecrets(c, errs)
	validateLogging(c, errs)

	return errs.ToError()
}

func validateServer(c *Config, errs *ValidationError) {
	if c.Server.Listen == "" {
		errs.Add("server.listen is required")
	} else {
		validateListenAddress(c.Server.Listen, errs)
	}

	if c.Server.TimeoutMS < 0 {
		errs.Add("server.timeout_ms must be >= 0")
	}
	if c.Server.MaxBodyBytes < 0 {
		errs.Add("server.max_body_bytes must be >= 0")
	}
}

// validateListenAddress validates a listen address in host:port format.
func validateListenAddress(addr string, errs *ValidationError) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		errs.Addf("server.listen must be in host:port format (got %q)", addr)
		return
	}

	// Host can be empty (listen on all interfaces) or a valid IP/hostname
	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			if strings.ContainsAny(host, " \t\n") {
				errs.Add("server.listen host contains invalid characters")
			}
		}
	}

	if port == "" {
		errs.Add("server.listen port is required")
	}
}

func validateLimits(c *Config, errs *ValidationError) {
	l := &c.Limits

	if l.GlobalRPS < 0 {
		errs.Add("limits.global_rps must be >= 0")
	}
	if l.UserRPS < 0 {
		errs.Add("limits.user_rps must be >= 0")
	}
	if l.UserRPS > 0 && l.GlobalRPS > 0 && l.UserRPS > l.GlobalRPS {
		errs.Addf("limits.user_rps (%g) must not exceed limits.global_rps (%g)",
			l.UserRPS, l.GlobalRPS)
	}
	if l.MaxParallel < 0 {
		errs.Add("limits.max_parallel must be >= 0")
	}
	if l.GateWaitMS < 0 {
		errs.Add("limits.gate_wait_ms must be >= 0")
	}
	if l.MaxMessages < 0 {
		errs.Add("limits.max_messages must be >= 0")
	}
	if l.MaxMessageLen < 0 {
		errs.Add("limits.max_message_len must be >= 0")
	}
	if l.MaxTokensCap < 0 {
		errs.Add("limits.max_tokens_cap must be >= 0")
	}
}

func validateUpstream(c *Config, errs *ValidationError) {
	u := &c.Upstream

	if u.MaxRetries < 0 {
		errs.Add("upstream.max_retries must be >= 0")
	}
	if u.BaseBackoffMS < 0 {
		errs.Add("upstream.base_backoff_ms must be >= 0")
	}
	if u.MaxBackoffMS < 0 {
		errs.Add("upstream.max_backoff_ms must be >= 0")
	}
	if u.NetworkBackoffMS < 0 {
		errs.Add("upstream.network_backoff_ms must be >= 0")
	}
	if u.BaseBackoffMS > 0 && u.MaxBackoffMS > 0 && u.BaseBackoffMS > u.MaxBackoffMS {
		errs.Add("upstream.base_backoff_ms must not exceed upstream.max_backoff_ms")
	}
	if u.Breaker.OpenSeconds < 0 {
		errs.Add("upstream.breaker.open_seconds must be >= 0")
	}
}

func validateSecrets(c *Config, errs *ValidationError) {
	s := &c.Secrets

	if !validSecretModes[s.Mode] {
		errs.Addf("secrets.mode is invalid (got %q, valid: static, oauth)", s.Mode)
	}

	if s.Endpoint != "" {
		if _, err := url.Parse(s.Endpoint); err != nil {
			errs.Addf("secrets.endpoint is not a valid URL (got %q)", s.Endpoint)
		}
	}

	if s.GetEffectiveMode() == SecretModeOAuth {
		if s.OAuth.TokenURL == "" {
			errs.Add("secrets.oauth.token_url is required in oauth mode")
		}
		if s.OAuth.ClientID == "" {
			errs.Add("secrets.oauth.client_id is required in oauth mode")
		}
		if s.OAuth.ClientSecret == "" {
			errs.Add("secrets.oauth.client_secret is required in oauth mode")
		}
	}
}

func validateLogging(c *Config, errs *ValidationError) {
	if !validLogLevels[c.Logging.Level] {
		errs.Addf("logging.level is invalid (got %q, valid: debug, info, warn, error)",
			c.Logging.Level)
	}

	if !validLogFormats[c.Logging.Format] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console, text, pretty)",
			c.Logging.Format)
	}
}
