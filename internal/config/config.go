// ABOUTME: Configuration loading and parsing for mcp-hub
// ABOUTME: Supports YAML files with environment variable expansion and validation

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Transport modes for the caller-facing endpoint.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config represents the complete mcp-hub configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Database  DatabaseConfig  `yaml:"database"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the caller-facing endpoint configuration
type ServerConfig struct {
	// HTTPAddr is the listen address for the HTTP transport (ignored in stdio mode)
	HTTPAddr string `yaml:"http_addr"`
	// Transport selects "http" (multi-session) or "stdio" (single exclusive stream)
	Transport string `yaml:"transport"`
}

// ProfilesConfig holds profile descriptor locations
type ProfilesConfig struct {
	// Dir is the directory containing <name>.yaml profile descriptors
	Dir string `yaml:"dir"`
	// Default is the profile activated at startup
	Default string `yaml:"default"`
}

// DatabaseConfig holds the audit database configuration.
// An empty path disables auditing entirely.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Transport == "" {
		c.Server.Transport = TransportHTTP
	}
	if c.Server.Transport != TransportHTTP && c.Server.Transport != TransportStdio {
		return fmt.Errorf("server.transport must be %q or %q, got %q",
			TransportHTTP, TransportStdio, c.Server.Transport)
	}

	if c.Server.Transport == TransportHTTP && !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Profiles.Dir == "" {
		return fmt.Errorf("profiles.dir is required")
	}
	if c.Profiles.Default == "" {
		return fmt.Errorf("profiles.default is required")
	}

	return nil
}
