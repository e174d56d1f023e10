package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/axescan/axescan/internal/axe"
	"github.com/axescan/axescan/internal/browser"
	"github.com/axescan/axescan/internal/navigator"
	"github.com/axescan/axescan/internal/ratelimit"
	"github.com/axescan/axescan/internal/scanner"
	"github.com/axescan/axescan/internal/server"
	"github.com/axescan/axescan/internal/store"
)

// EvidenceConfig selects where violation screenshots go. An empty backend
// disables evidence capture entirely.
type EvidenceConfig struct {
	// Backend is "fs", "s3" or "" (disabled).
	Backend string `yaml:"backend"`

	// Dir is the root directory for the fs backend.
	Dir string `yaml:"dir"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`
}

// Config aggregates every component's configuration.
type Config struct {
	Server    server.Config    `yaml:"server"`
	Store     store.Config     `yaml:"store"`
	Browser   browser.Config   `yaml:"browser"`
	Navigator navigator.Config `yaml:"navigator"`
	Axe       axe.Config       `yaml:"axe"`
	Scanner   scanner.Config   `yaml:"scanner"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Evidence  EvidenceConfig   `yaml:"evidence"`

	// AxeScriptURL overrides the engine CDN location; AxeScriptPath wins over
	// it and loads the engine from disk instead.
	AxeScriptURL  string `yaml:"axe_script_url"`
	AxeScriptPath string `yaml:"axe_script_path"`

	// RateLimitEnabled toggles per-IP throttling of scan initiation.
	RateLimitEnabled bool `yaml:"rate_limit_enabled"`

	// StalePendingAfter is how long a scan may sit pending before the
	// janitor fails it as abandoned.
	StalePendingAfter time.Duration `yaml:"stale_pending_after"`
}

// DefaultConfig returns development defaults: local browser, sqlite next to
// the working directory, rate limiting on.
func DefaultConfig() *Config {
	return &Config{
		Server:            server.DefaultConfig(),
		Store:             store.Config{Backend: "sqlite", Path: "axescan.db"},
		Browser:           browser.DefaultConfig(),
		Navigator:         navigator.DefaultConfig(),
		Axe:               axe.DefaultConfig(),
		Scanner:           scanner.DefaultConfig(),
		RateLimit:         ratelimit.DefaultConfig(),
		RateLimitEnabled:  true,
		StalePendingAfter: 2 * time.Minute,
	}
}

// Load builds the effective configuration: defaults, then the optional YAML
// file at path, then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.ListenAddr, "AXESCAN_LISTEN_ADDR")
	setString(&c.Store.Backend, "AXESCAN_STORE_BACKEND")
	setString(&c.Store.Path, "AXESCAN_STORE_PATH")
	setString(&c.Store.URL, "AXESCAN_DATABASE_URL")

	if v := os.Getenv("AXESCAN_BROWSER_PROFILE"); v != "" {
		c.Browser.Profile = browser.Profile(v)
	}
	setString(&c.Browser.ExecPath, "AXESCAN_BROWSER_EXEC_PATH")

	c.Scanner.Workers = getInt("AXESCAN_WORKERS", c.Scanner.Workers)
	c.Scanner.QueueSize = getInt("AXESCAN_QUEUE_SIZE", c.Scanner.QueueSize)
	c.Scanner.FreshnessWindow = getDuration("AXESCAN_FRESHNESS_WINDOW", c.Scanner.FreshnessWindow)

	c.Axe.CaptureEvidence = getBool("AXESCAN_CAPTURE_EVIDENCE", c.Axe.CaptureEvidence)
	setString(&c.AxeScriptURL, "AXESCAN_AXE_SCRIPT_URL")
	setString(&c.AxeScriptPath, "AXESCAN_AXE_SCRIPT_PATH")

	setString(&c.Evidence.Backend, "AXESCAN_EVIDENCE_BACKEND")
	setString(&c.Evidence.Dir, "AXESCAN_EVIDENCE_DIR")
	setString(&c.Evidence.S3Endpoint, "AXESCAN_S3_ENDPOINT")
	setString(&c.Evidence.S3AccessKey, "AXESCAN_S3_ACCESS_KEY")
	setString(&c.Evidence.S3SecretKey, "AXESCAN_S3_SECRET_KEY")
	setString(&c.Evidence.S3Bucket, "AXESCAN_S3_BUCKET")
	c.Evidence.S3UseSSL = getBool("AXESCAN_S3_USE_SSL", c.Evidence.S3UseSSL)

	c.RateLimitEnabled = getBool("AXESCAN_RATE_LIMIT_ENABLED", c.RateLimitEnabled)
	c.RateLimit.RequestsPerMinute = getInt("AXESCAN_RATE_LIMIT_RPM", c.RateLimit.RequestsPerMinute)
	c.RateLimit.Burst = getInt("AXESCAN_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.StalePendingAfter = getDuration("AXESCAN_STALE_PENDING_AFTER", c.StalePendingAfter)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
