package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "fleet:\n  name: test-fleet\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Fleet.Name != "test-fleet" {
		t.Errorf("expected fleet name test-fleet, got %q", cfg.Fleet.Name)
	}
	if cfg.Discovery.ChunkSize != 16 {
		t.Errorf("expected default chunk size 16, got %d", cfg.Discovery.ChunkSize)
	}
	if cfg.Transport.Timeout != 5 {
		t.Errorf("expected default transport timeout 5, got %d", cfg.Transport.Timeout)
	}
	if cfg.Executor.Concurrency != 16 {
		t.Errorf("expected default executor concurrency 16, got %d", cfg.Executor.Concurrency)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
discovery:
  chunk_size: 8
  probe_timeout: 2
  networks:
    - "192.168.1.0/24"
executor:
  concurrency: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Discovery.ChunkSize != 8 {
		t.Errorf("expected chunk size 8, got %d", cfg.Discovery.ChunkSize)
	}
	if len(cfg.Discovery.Networks) != 1 || cfg.Discovery.Networks[0] != "192.168.1.0/24" {
		t.Errorf("unexpected networks: %v", cfg.Discovery.Networks)
	}
	if cfg.Executor.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Executor.Concurrency)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  port: 9000\n")

	t.Setenv("SHELLYFLEET_API_PORT", "9100")
	t.Setenv("SHELLYFLEET_DATABASE_PATH", "/tmp/fleet-test.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Port != 9100 {
		t.Errorf("expected env override port 9100, got %d", cfg.API.Port)
	}
	if cfg.Database.Path != "/tmp/fleet-test.db" {
		t.Errorf("expected env override db path, got %q", cfg.Database.Path)
	}
}

func TestLoad_ShellyGroupsDirOverride(t *testing.T) {
	path := writeConfig(t, "data:\n  groups_dir: data/groups\n")

	t.Setenv("SHELLY_GROUPS_DIR", "/tmp/isolated-groups")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Data.GroupsDir != "/tmp/isolated-groups" {
		t.Errorf("expected SHELLY_GROUPS_DIR to win, got %q", cfg.Data.GroupsDir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Discovery.ChunkSize != 16 {
		t.Errorf("expected defaults, got chunk size %d", cfg.Discovery.ChunkSize)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "zero chunk size",
			mutate: func(c *Config) { c.Discovery.ChunkSize = 0 },
		},
		{
			name:   "zero transport timeout",
			mutate: func(c *Config) { c.Transport.Timeout = 0 },
		},
		{
			name:   "zero executor concurrency",
			mutate: func(c *Config) { c.Executor.Concurrency = 0 },
		},
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.API.Port = 0 },
		},
		{
			name:   "non-CIDR network",
			mutate: func(c *Config) { c.Discovery.Networks = []string{"192.168.1.5"} },
		},
		{
			name:   "tsdb enabled without bucket",
			mutate: func(c *Config) { c.TSDB.Enabled = true; c.TSDB.Bucket = "" },
		},
		{
			name:   "bad logging level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}
