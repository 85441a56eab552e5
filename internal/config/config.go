package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Service ServiceConfig `koanf:"service"`
	Limits  LimitsConfig  `koanf:"limits"`
	Journal JournalConfig `koanf:"journal"`
}

type ServiceConfig struct {
	Name                   string `koanf:"name"`
	Listen                 string `koanf:"listen"`
	AdminListen            string `koanf:"admin_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type LimitsConfig struct {
	// MaxPayloadBytes caps a single frame's declared payload size. The
	// wire format allows up to 4 GiB; the ceiling bounds memory per
	// connection.
	MaxPayloadBytes int `koanf:"max_payload_bytes"`
}

type JournalConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML file first.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: HAGSOCK_SERVICE__LISTEN → service.listen
	if err := k.Load(env.Provider("HAGSOCK_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "HAGSOCK_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:                   "hagsockd",
			Listen:                 "0.0.0.0:18888",
			AdminListen:            ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Limits: LimitsConfig{
			MaxPayloadBytes: 64 << 20,
		},
		Journal: JournalConfig{
			Path:     "hagsock-journal.bin",
			Compress: true,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Service.Listen == "" {
		return fmt.Errorf("config: service.listen is required")
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Limits.MaxPayloadBytes <= 0 {
		return fmt.Errorf("config: limits.max_payload_bytes must be > 0 (got %d)", c.Limits.MaxPayloadBytes)
	}
	if c.Limits.MaxPayloadBytes > int(^uint32(0)) {
		return fmt.Errorf("config: limits.max_payload_bytes must fit in 32 bits (got %d)", c.Limits.MaxPayloadBytes)
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("config: journal.path is required when journal.enabled is set")
	}
	return nil
}
