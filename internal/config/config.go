// Package config loads server settings from an optional YAML file and the
// environment. Environment variables, including those from a .env file in
// the working directory, override values read from the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HTTPConfig holds server timeouts.
type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the top-level server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`

	// ReminderTestMode treats reminder minutes as seconds so that
	// reminders fire quickly during manual testing.
	ReminderTestMode bool `yaml:"reminder_test_mode"`

	// ICalDomain is appended to generated iCalUIDs.
	ICalDomain string `yaml:"ical_domain"`

	// MaxInstances caps rule expansion per event and listing window.
	MaxInstances int `yaml:"max_instances"`

	HTTP HTTPConfig `yaml:"http"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8099",
		DataDir:      "/data",
		LogLevel:     "info",
		LogFormat:    "text",
		ICalDomain:   "calendar.app",
		MaxInstances: 1000,
		HTTP: HTTPConfig{
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	switch strings.ToLower(c.LogFormat) {
	case "json":
		c.LogFormat = "json"
	default:
		c.LogFormat = "text"
	}
	if c.ICalDomain == "" {
		c.ICalDomain = def.ICalDomain
	}
	if c.MaxInstances <= 0 {
		c.MaxInstances = def.MaxInstances
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = def.HTTP.ReadTimeout
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = def.HTTP.WriteTimeout
	}
	if c.HTTP.IdleTimeout <= 0 {
		c.HTTP.IdleTimeout = def.HTTP.IdleTimeout
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = def.HTTP.ShutdownTimeout
	}
}

// DatabasePath returns the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "calendar.db")
}

// Load reads the YAML file at path, applies environment overrides and
// normalizes the result. An empty path or a missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CALENDAR_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("CALENDAR_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CALENDAR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CALENDAR_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("CALENDAR_ICAL_DOMAIN"); v != "" {
		c.ICalDomain = v
	}
	if v := os.Getenv("CALENDAR_REMINDER_TEST_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CALENDAR_REMINDER_TEST_MODE: %w", err)
		}
		c.ReminderTestMode = b
	}
	if v := os.Getenv("CALENDAR_MAX_INSTANCES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CALENDAR_MAX_INSTANCES: %w", err)
		}
		c.MaxInstances = n
	}
	return nil
}
