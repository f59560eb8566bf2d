// Package config loads and validates the msisync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the base URL of the maritime-safety publication API.
const DefaultAPIURL = "https://msi.nga.mil/api/publications"

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// APIURL is the base URL of the remote bulletin API. Defaults to
	// DefaultAPIURL.
	APIURL string `yaml:"api_url"`

	// Database is the SQLite cache path. Empty means the per-user default
	// under ~/.local/share/msisync.
	Database string `yaml:"database"`

	// SyncInterval is the per-entity refresh debounce window.
	// Minimum 1m. Defaults to 5m if unset.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// PollInterval controls how often the daemon runs a full refresh pass.
	// Minimum the sync interval. Defaults to 15m if unset.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Entities switches individual bulletin types on or off, keyed by entity
	// key (e.g. "asam"). Types not listed stay enabled.
	Entities map[string]bool `yaml:"entities,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "msisync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/msisync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "msisync", "config.yaml"), nil
}

// Default returns the configuration used when no config file exists. Every
// field is optional, so an all-defaults run needs no file at all.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Enabled reports whether the given entity type is switched on.
func (c *Config) Enabled(entityKey string) bool {
	if c.Entities == nil {
		return true
	}
	enabled, listed := c.Entities[entityKey]
	return !listed || enabled
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = 5 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = 15 * time.Minute
	}
}

// validate checks that all fields are well-formed and fills in defaults.
func (c *Config) validate() error {
	c.applyDefaults()

	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api_url %q must be a valid http or https URL", c.APIURL)
	}

	if c.SyncInterval < time.Minute {
		return fmt.Errorf("sync_interval %v is too short (minimum 1m)", c.SyncInterval)
	}
	if c.PollInterval < c.SyncInterval {
		return fmt.Errorf("poll_interval %v must not be shorter than sync_interval %v", c.PollInterval, c.SyncInterval)
	}

	for key := range c.Entities {
		if key == "" {
			return fmt.Errorf("entities contains an empty entity key")
		}
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
