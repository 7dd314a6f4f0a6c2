package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all process-level configuration, loaded from the environment.
// Per-site runtime settings live in the key-value store (see SiteConfig).
type Config struct {
	// HTTP
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	HealthAddr  string `koanf:"health_addr"`

	// Site selection
	SiteID string `koanf:"site_id"`

	// Secrets
	ChallengeSecret string `koanf:"challenge_secret"`
	AdminAPIKey     string `koanf:"admin_api_key"`

	// Admin API throttle
	AdminRateLimit float64 `koanf:"admin_rate_limit"`
	AdminRateBurst int     `koanf:"admin_rate_burst"`

	// Storage
	DataDir string `koanf:"data_dir"`

	// Housekeeping: event-log and stale-rate-window retention.
	// Ban expiry is lazy and read-triggered; the janitor never touches bans.
	JanitorInterval time.Duration `koanf:"janitor_interval"`
	EventRetention  time.Duration `koanf:"event_retention"`

	// Operational
	TestMode  bool   `koanf:"test_mode"` // overrides the site config flag when set
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// defaults sets sensible default values.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen_addr":      ":8080",
		"metrics_addr":     ":9090",
		"health_addr":      ":8081",
		"site_id":          "default",
		"admin_rate_limit": 10.0,
		"admin_rate_burst": 20,
		"data_dir":         "/data",
		"janitor_interval": "1h",
		"event_retention":  "2160h", // 90 days
		"test_mode":        false,
		"log_level":        "info",
		"log_format":       "json",
	}
}

// stripEnvQuotes removes a single layer of matching surrounding single or
// double quotes from s. This normalises values set via Docker --env-file,
// which does not strip shell quoting.
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// Load reads configuration from environment variables, applying _FILE secret injection.
func Load() (*Config, error) {
	// Use "." as delimiter so env vars with "_" in their names are treated as
	// flat keys, not nested paths. E.g. LISTEN_ADDR → "listen_addr" maps to
	// the koanf struct tag without nesting.
	k := koanf.New(".")

	if err := k.Load(&rawProvider{data: defaults()}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.sanitise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sanitise removes Docker env-file quoting from all string fields.
func (c *Config) sanitise() {
	c.ListenAddr = stripEnvQuotes(c.ListenAddr)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
	c.HealthAddr = stripEnvQuotes(c.HealthAddr)
	c.SiteID = stripEnvQuotes(c.SiteID)
	c.ChallengeSecret = stripEnvQuotes(c.ChallengeSecret)
	c.AdminAPIKey = stripEnvQuotes(c.AdminAPIKey)
	c.DataDir = stripEnvQuotes(c.DataDir)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.ChallengeSecret == "" {
		return fmt.Errorf("CHALLENGE_SECRET is required")
	}
	if c.SiteID == "" {
		return fmt.Errorf("SITE_ID must not be empty")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	if c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be > 0; got %s", c.JanitorInterval)
	}
	if c.EventRetention <= 0 {
		return fmt.Errorf("EVENT_RETENTION must be > 0; got %s", c.EventRetention)
	}
	if c.AdminRateLimit <= 0 {
		return fmt.Errorf("ADMIN_RATE_LIMIT must be > 0; got %v", c.AdminRateLimit)
	}
	if c.AdminRateBurst < 1 {
		return fmt.Errorf("ADMIN_RATE_BURST must be >= 1; got %d", c.AdminRateBurst)
	}
	return nil
}

// injectFileSecrets reads _FILE env vars and injects their file contents.
var fileSecretKeys = []string{
	"challenge_secret",
	"admin_api_key",
}

func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		fileKey := key + "_file"
		filePath := k.String(fileKey)
		if filePath == "" {
			envKey := strings.ToUpper(key) + "_FILE"
			filePath = os.Getenv(envKey)
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		val := strings.TrimSpace(string(content))
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}
