package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Shelly fleet core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Fleet     FleetConfig     `yaml:"fleet"`
	Data      DataConfig      `yaml:"data"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Transport TransportConfig `yaml:"transport"`
	Executor  ExecutorConfig  `yaml:"executor"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	TSDB      TSDBConfig      `yaml:"tsdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FleetConfig contains site-level information.
type FleetConfig struct {
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DataConfig contains the on-disk layout for fleet state.
//
// Devices, groups and capability definitions are each persisted as one YAML
// file per entity; the directories are created on first use.
type DataConfig struct {
	// DevicesDir holds one YAML file per known device (<type>_<MAC>.yaml).
	DevicesDir string `yaml:"devices_dir"`

	// GroupsDir holds one YAML file per device group.
	// Overridden by the SHELLY_GROUPS_DIR environment variable when set.
	GroupsDir string `yaml:"groups_dir"`

	// CapabilitiesDir holds one YAML file per capability definition.
	CapabilitiesDir string `yaml:"capabilities_dir"`

	// DeviceTypesFile is the static generation/feature knowledge table.
	DeviceTypesFile string `yaml:"device_types_file"`

	// ParameterMappingsFile is the cross-generation parameter mapping table.
	ParameterMappingsFile string `yaml:"parameter_mappings_file"`
}

// DiscoveryConfig contains device discovery settings.
type DiscoveryConfig struct {
	// MDNS enables the multicast DNS listener.
	MDNS bool `yaml:"mdns"`

	// HTTPProbe enables active probing of configured networks.
	HTTPProbe bool `yaml:"http_probe"`

	// Networks is a list of CIDR blocks to probe (e.g. "192.168.1.0/24").
	Networks []string `yaml:"networks"`

	// ChunkSize bounds how many IPs are probed simultaneously.
	ChunkSize int `yaml:"chunk_size"`

	// ProbeTimeout is the per-IP connect timeout in seconds.
	ProbeTimeout int `yaml:"probe_timeout"`

	// MDNSWindow is how long a single mDNS browse waits for answers, in seconds.
	MDNSWindow int `yaml:"mdns_window"`
}

// TransportConfig contains device HTTP transport settings.
type TransportConfig struct {
	// Timeout is the per-request deadline in seconds.
	Timeout int `yaml:"timeout"`

	// RetryBackoffMs is the delay before the single automatic retry.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`

	// IdleConnTimeout is how long idle pooled connections are kept, in seconds.
	IdleConnTimeout int `yaml:"idle_conn_timeout"`

	// Breaker configures the per-host circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig contains circuit breaker settings for flaky hosts.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxFailures is how many consecutive failures open the breaker.
	MaxFailures int `yaml:"max_failures"`

	// OpenSeconds is how long an open breaker rejects calls before half-open.
	OpenSeconds int `yaml:"open_seconds"`
}

// ExecutorConfig contains group fan-out settings.
type ExecutorConfig struct {
	// Concurrency bounds simultaneous per-device operations in a group run.
	Concurrency int `yaml:"concurrency"`

	// DestructiveVerbs require confirm=true when targeting all-devices.
	DestructiveVerbs []string `yaml:"destructive_verbs"`

	// RebootGrace is the bounded wait after a coordinated reboot, in seconds.
	RebootGrace int `yaml:"reboot_grace"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite settings for the operation history store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TSDBConfig contains optional InfluxDB telemetry sink settings.
type TSDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHELLYFLEET_SECTION_KEY
// For example: SHELLYFLEET_API_PORT, SHELLYFLEET_DATABASE_PATH.
// SHELLY_GROUPS_DIR is also honoured as a legacy override for the groups
// directory so test runs can isolate group state.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults (plus env
// overrides) when the config file does not exist. Used by the CLI so simple
// verbs work from a bare checkout.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Fleet: FleetConfig{
			Name:     "shelly-fleet",
			Timezone: "UTC",
		},
		Data: DataConfig{
			DevicesDir:            "data/devices",
			GroupsDir:             "data/groups",
			CapabilitiesDir:       "config/device_capabilities",
			DeviceTypesFile:       "config/device_types.yaml",
			ParameterMappingsFile: "config/parameter_mappings.yaml",
		},
		Discovery: DiscoveryConfig{
			MDNS:         true,
			HTTPProbe:    true,
			ChunkSize:    16,
			ProbeTimeout: 1,
			MDNSWindow:   5,
		},
		Transport: TransportConfig{
			Timeout:         5,
			RetryBackoffMs:  250,
			IdleConnTimeout: 30,
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenSeconds: 30,
			},
		},
		Executor: ExecutorConfig{
			Concurrency:      16,
			DestructiveVerbs: []string{"off", "reboot", "update_firmware"},
			RebootGrace:      10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Path:        "data/shellyfleet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		TSDB: TSDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Bucket:        "shellyfleet",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHELLYFLEET_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// Data layout
	if v := os.Getenv("SHELLYFLEET_DATA_DEVICES_DIR"); v != "" {
		cfg.Data.DevicesDir = v
	}
	if v := os.Getenv("SHELLYFLEET_DATA_GROUPS_DIR"); v != "" {
		cfg.Data.GroupsDir = v
	}
	// Legacy override used by tests to isolate group state.
	if v := os.Getenv("SHELLY_GROUPS_DIR"); v != "" {
		cfg.Data.GroupsDir = v
	}
	if v := os.Getenv("SHELLYFLEET_DATA_CAPABILITIES_DIR"); v != "" {
		cfg.Data.CapabilitiesDir = v
	}

	// API
	if v := os.Getenv("SHELLYFLEET_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SHELLYFLEET_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("SHELLYFLEET_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// TSDB
	if v := os.Getenv("SHELLYFLEET_TSDB_URL"); v != "" {
		cfg.TSDB.URL = v
	}
	if v := os.Getenv("SHELLYFLEET_TSDB_TOKEN"); v != "" {
		cfg.TSDB.Token = v
	}

	// Discovery
	if v := os.Getenv("SHELLYFLEET_DISCOVERY_NETWORKS"); v != "" {
		cfg.Discovery.Networks = splitAndTrim(v)
	}

	// Logging
	if v := os.Getenv("SHELLYFLEET_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SHELLYFLEET_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// splitAndTrim splits a comma-separated env value into trimmed entries.
func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks the configuration for invalid or inconsistent values.
//
// Returns:
//   - error: Describing the first validation failure, or nil
func (c *Config) Validate() error {
	if c.Data.DevicesDir == "" {
		return fmt.Errorf("data.devices_dir is required")
	}
	if c.Data.GroupsDir == "" {
		return fmt.Errorf("data.groups_dir is required")
	}
	if c.Data.CapabilitiesDir == "" {
		return fmt.Errorf("data.capabilities_dir is required")
	}

	if c.Discovery.ChunkSize <= 0 {
		return fmt.Errorf("discovery.chunk_size must be positive, got %d", c.Discovery.ChunkSize)
	}
	if c.Discovery.ProbeTimeout <= 0 {
		return fmt.Errorf("discovery.probe_timeout must be positive, got %d", c.Discovery.ProbeTimeout)
	}
	for _, network := range c.Discovery.Networks {
		if !strings.Contains(network, "/") {
			return fmt.Errorf("discovery.networks entry %q is not a CIDR block", network)
		}
	}

	if c.Transport.Timeout <= 0 {
		return fmt.Errorf("transport.timeout must be positive, got %d", c.Transport.Timeout)
	}
	if c.Transport.RetryBackoffMs < 0 {
		return fmt.Errorf("transport.retry_backoff_ms must not be negative, got %d", c.Transport.RetryBackoffMs)
	}

	if c.Executor.Concurrency <= 0 {
		return fmt.Errorf("executor.concurrency must be positive, got %d", c.Executor.Concurrency)
	}
	if c.Executor.RebootGrace < 0 {
		return fmt.Errorf("executor.reboot_grace must not be negative, got %d", c.Executor.RebootGrace)
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", c.API.Port)
	}

	if c.TSDB.Enabled {
		if c.TSDB.URL == "" {
			return fmt.Errorf("tsdb.url is required when tsdb is enabled")
		}
		if c.TSDB.Bucket == "" {
			return fmt.Errorf("tsdb.bucket is required when tsdb is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("logging.level %q is not valid", c.Logging.Level)
	}

	return nil
}
