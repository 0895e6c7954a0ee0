package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Environment override keys. Each, when set, takes precedence over the
// corresponding file value.
const (
	EnvGlobalRPS      = "RELAY_GLOBAL_RPS"
	EnvUserRPS        = "RELAY_USER_RPS"
	EnvMaxParallel    = "RELAY_MAX_PARALLEL"
	EnvMaxRetries     = "RELAY_MAX_RETRIES"
	EnvBaseBackoffMS  = "RELAY_BASE_BACKOFF_MS"
	EnvMaxBackoffMS   = "RELAY_MAX_BACKOFF_MS"
	EnvMaxMessages    = "RELAY_MAX_MESSAGES"
	EnvMaxMessageLen  = "RELAY_MAX_MESSAGE_LEN"
	EnvMaxTokensCap   = "RELAY_MAX_TOKENS_CAP"
	EnvAllowedOrigins = "RELAY_ALLOWED_ORIGINS"
	EnvEndpoint       = "AOAI_ENDPOINT"
	EnvAPIKey         = "AOAI_API_KEY"
)

// Load reads and parses a configuration file from the given path.
// The format is chosen by extension: .toml parses as TOML, anything else
// as YAML. Environment variables in the format ${VAR_NAME} are expanded
// before parsing, and RELAY_*/AOAI_* environment overrides are applied
// after.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}

	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", cerr)
		}
	}()

	cfg, err := LoadFromReader(file, formatForPath(path))
	if err != nil {
		return nil, err
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// Format identifies a config file format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadFromReader reads and parses configuration from an io.Reader in the
// given format. Environment variables in the format ${VAR_NAME} are
// expanded before parsing.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(content)))

	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnvOverrides overwrites config fields from RELAY_*/AOAI_*
// environment variables. Unset variables leave the file values intact;
// malformed numeric values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	overrideFloat(EnvGlobalRPS, &cfg.Limits.GlobalRPS)
	overrideFloat(EnvUserRPS, &cfg.Limits.UserRPS)
	overrideInt(EnvMaxParallel, &cfg.Limits.MaxParallel)
	overrideInt(EnvMaxRetries, &cfg.Upstream.MaxRetries)
	overrideInt(EnvBaseBackoffMS, &cfg.Upstream.BaseBackoffMS)
	overrideInt(EnvMaxBackoffMS, &cfg.Upstream.MaxBackoffMS)
	overrideInt(EnvMaxMessages, &cfg.Limits.MaxMessages)
	overrideInt(EnvMaxMessageLen, &cfg.Limits.MaxMessageLen)
	overrideInt(EnvMaxTokensCap, &cfg.Limits.MaxTokensCap)

	if v, ok := os.LookupEnv(EnvAllowedOrigins); ok {
		cfg.Limits.AllowedOrigins = splitOrigins(v)
	}
	if v, ok := os.LookupEnv(EnvEndpoint); ok {
		cfg.Secrets.Endpoint = v
	}
	if v, ok := os.LookupEnv(EnvAPIKey); ok {
		cfg.Secrets.APIKey = v
	}
}

func overrideInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = parsed
}

func overrideFloat(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = parsed
}

// splitOrigins parses a comma-separated origin list, trimming whitespace
// and dropping empty items.
func splitOrigins(v string) []string {
	return lo.FilterMap(strings.Split(v, ","), func(p string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(p)
		return trimmed, trimmed != ""
	})
}
