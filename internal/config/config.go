// Package config loads the server configuration from a YAML or TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Jobs     JobsConfig     `yaml:"jobs" toml:"jobs"`
	Tools    ToolsConfig    `yaml:"tools" toml:"tools"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

type ServerConfig struct {
	HTTPAddr            string   `yaml:"http_addr" toml:"http_addr"`
	Name                string   `yaml:"name" toml:"name"`
	Version             string   `yaml:"version" toml:"version"`
	ProtocolVersion     string   `yaml:"protocol_version" toml:"protocol_version"`
	StrictNotifications bool     `yaml:"strict_notifications" toml:"strict_notifications"`
	MaxBodyBytes        int64    `yaml:"max_body_bytes" toml:"max_body_bytes"`
	AllowedOrigins      []string `yaml:"allowed_origins" toml:"allowed_origins"`
	Environment         string   `yaml:"environment" toml:"environment"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// JobsConfig controls the background queue used by tools/call requests
// that set meta.background.
type JobsConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	Workers      int           `yaml:"workers" toml:"workers"`
	PollInterval time.Duration `yaml:"-" toml:"-"`

	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
}

type ToolsConfig struct {
	DefaultTimeout time.Duration `yaml:"-" toml:"-"`

	DefaultTimeoutRaw string `yaml:"default_timeout" toml:"default_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a config that runs without a file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:     ":6969",
			Name:         "mcpcore",
			Version:      "dev",
			MaxBodyBytes: 1 << 20,
			Environment:  "development",
		},
		Database: DatabaseConfig{Path: "mcpcore.db"},
		Jobs: JobsConfig{
			Enabled:         true,
			Workers:         2,
			PollInterval:    time.Second,
			PollIntervalRaw: "1s",
		},
		Tools: ToolsConfig{
			DefaultTimeout:    30 * time.Second,
			DefaultTimeoutRaw: "30s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the file at path over Default. The format follows the
// extension: .toml for TOML, anything else is YAML.
// ${VAR_NAME} references are expanded from the environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(expandEnvVars(string(data)), formatOf(path))
}

type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes already-expanded content in the given format.
func Parse(content string, format Format) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatTOML:
		if _, err := toml.Decode(content, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or the
// empty string when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	var err error
	if cfg.Jobs.PollIntervalRaw != "" {
		cfg.Jobs.PollInterval, err = time.ParseDuration(cfg.Jobs.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Jobs.PollIntervalRaw, err)
		}
	}
	if cfg.Tools.DefaultTimeoutRaw != "" {
		cfg.Tools.DefaultTimeout, err = time.ParseDuration(cfg.Tools.DefaultTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing default_timeout %q: %w", cfg.Tools.DefaultTimeoutRaw, err)
		}
	}
	return nil
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Jobs.Enabled {
		if c.Database.Path == "" {
			return errors.New("database.path is required when jobs are enabled")
		}
		if c.Jobs.Workers < 1 {
			return errors.New("jobs.workers must be at least 1")
		}
		if c.Jobs.PollInterval <= 0 {
			return errors.New("jobs.poll_interval must be positive")
		}
	}
	if c.Tools.DefaultTimeout <= 0 {
		return errors.New("tools.default_timeout must be positive")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}
