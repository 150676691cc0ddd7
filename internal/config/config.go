// Package config loads PaperMinder server configuration from a TOML file
// with environment variable overrides, the same layered approach used
// throughout this codebase family.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DatabaseConfig selects and parameterizes the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `toml:"driver"`
	// Path is the SQLite file path, used only for the sqlite driver.
	Path string `toml:"path"`
	// DSN is the postgres connection string ("database_url").
	DSN string `toml:"dsn"`
}

// EffectiveDriver defaults to sqlite when unset.
func (c *DatabaseConfig) EffectiveDriver() string {
	if c.Driver == "" {
		if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
			return "postgres"
		}
		return "sqlite"
	}
	return c.Driver
}

// Config is the full server configuration (spec.md §6).
type Config struct {
	Database           DatabaseConfig `toml:"database"`
	CORSAllowedOrigins []string       `toml:"cors_allowed_origins"`
	BaseURL            string         `toml:"base_url"`
	MaxFirmwareSize    int64          `toml:"max_firmware_size"`
	JWTSecret          string         `toml:"jwt_secret"`

	HTTPAddr        string `toml:"http_addr"`
	MaxFrameBytes   int    `toml:"max_frame_bytes"`
	WriteTimeoutSec int    `toml:"write_timeout_seconds"`
	SchedulerTickS  int    `toml:"scheduler_tick_seconds"`
	LogLevel        string `toml:"log_level"`
	LogDir          string `toml:"log_dir"`
}

// Default returns the documented defaults from spec.md §6.
func Default() *Config {
	return &Config{
		Database:           DatabaseConfig{Driver: "sqlite", Path: "paperminder.db"},
		CORSAllowedOrigins: []string{"*"},
		BaseURL:            "http://localhost:8000",
		MaxFirmwareSize:    5 * 1024 * 1024,
		HTTPAddr:           ":8000",
		MaxFrameBytes:      64 * 1024,
		WriteTimeoutSec:    10,
		SchedulerTickS:     30,
		LogLevel:           "info",
	}
}

// Load reads configPath (if it exists) over the defaults, then applies
// environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if _, err := toml.DecodeFile(configPath, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("PAPERMINDER_DATABASE_URL", "DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
		cfg.Database.Driver = "postgres"
	}
	if v := firstEnv("PAPERMINDER_CORS_ALLOWED_ORIGINS", "CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := firstEnv("PAPERMINDER_BASE_URL", "BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := firstEnv("PAPERMINDER_MAX_FIRMWARE_SIZE", "MAX_FIRMWARE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxFirmwareSize = n
		}
	}
	if v := firstEnv("PAPERMINDER_JWT_SECRET", "JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := firstEnv("PAPERMINDER_LOG_LEVEL", "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WriteDefault writes a default config.toml if one doesn't already exist.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(Default())
}
