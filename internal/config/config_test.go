package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Listen != "0.0.0.0:18888" {
		t.Fatalf("listen = %q", cfg.Service.Listen)
	}
	if cfg.Service.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.Service.LogLevel)
	}
	if cfg.Limits.MaxPayloadBytes != 64<<20 {
		t.Fatalf("max payload = %d", cfg.Limits.MaxPayloadBytes)
	}
	if cfg.Journal.Enabled {
		t.Fatal("journal enabled by default")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
service:
  listen: "127.0.0.1:9999"
  log_level: debug
limits:
  max_payload_bytes: 1048576
journal:
  enabled: true
  path: /tmp/j.bin
  compress: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Listen != "127.0.0.1:9999" {
		t.Fatalf("listen = %q", cfg.Service.Listen)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.Service.LogLevel)
	}
	if cfg.Limits.MaxPayloadBytes != 1<<20 {
		t.Fatalf("max payload = %d", cfg.Limits.MaxPayloadBytes)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/j.bin" || cfg.Journal.Compress {
		t.Fatalf("journal = %+v", cfg.Journal)
	}
	// Unset fields keep their defaults.
	if cfg.Service.ShutdownTimeoutSeconds != 30 {
		t.Fatalf("shutdown timeout = %d", cfg.Service.ShutdownTimeoutSeconds)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
service:
  listen: "127.0.0.1:9999"
`)
	t.Setenv("HAGSOCK_SERVICE__LISTEN", "10.0.0.1:7777")
	t.Setenv("HAGSOCK_SERVICE__LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Listen != "10.0.0.1:7777" {
		t.Fatalf("listen = %q, env should win", cfg.Service.Listen)
	}
	if cfg.Service.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.Service.LogLevel)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Service: ServiceConfig{
				Listen:                 ":18888",
				ShutdownTimeoutSeconds: 30,
			},
			Limits: LimitsConfig{MaxPayloadBytes: 1024},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Service.Listen = "" }},
		{"zero shutdown timeout", func(c *Config) { c.Service.ShutdownTimeoutSeconds = 0 }},
		{"zero max payload", func(c *Config) { c.Limits.MaxPayloadBytes = 0 }},
		{"negative max payload", func(c *Config) { c.Limits.MaxPayloadBytes = -1 }},
		{"oversized max payload", func(c *Config) { c.Limits.MaxPayloadBytes = 1 << 40 }},
		{"journal enabled without path", func(c *Config) { c.Journal.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
