// Package config loads and validates the supactl configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config represents the complete supactl configuration.
type Config struct {
	Connector ConnectorConfig `yaml:"connector"`
	Log       LogConfig       `yaml:"log,omitempty"`
	Journal   JournalConfig   `yaml:"journal,omitempty"`
	Relay     RelayConfig     `yaml:"relay,omitempty"`
}

// ConnectorConfig defines how the external management tool is invoked.
type ConnectorConfig struct {
	Binary      string        `yaml:"binary"`
	Server      string        `yaml:"server"`
	Timeout     time.Duration `yaml:"timeout"`
	GracePeriod time.Duration `yaml:"grace_period"`
	// AccessTokenEnv names the env var the tool reads its credential
	// from. supactl never validates its presence (that surfaces as a
	// remote auth failure); doctor only warns.
	AccessTokenEnv string `yaml:"access_token_env"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// JournalConfig defines the local call journal settings.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// RelayConfig defines the optional local HTTP relay.
type RelayConfig struct {
	Enabled bool            `yaml:"enabled"`
	Listen  string          `yaml:"listen"`
	Auth    RelayAuthConfig `yaml:"auth"`
}

// RelayAuthConfig defines relay authentication settings.
type RelayAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Connector: ConnectorConfig{
			Binary:         "manus-mcp-cli",
			Server:         "supabase",
			Timeout:        30 * time.Second,
			GracePeriod:    5 * time.Second,
			AccessTokenEnv: "SUPABASE_ACCESS_TOKEN",
		},
		Log: LogConfig{
			Level: "info",
		},
		Journal: JournalConfig{
			Enabled:   true,
			Path:      "./data/journal.db",
			Retention: 30 * 24 * time.Hour,
		},
		Relay: RelayConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8484",
		},
	}
}

// Load reads and parses configuration from a file. ${VAR} placeholders
// are replaced from the environment before parsing; undefined variables
// are left as-is.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg := Defaults()
	expanded := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: $SUPACTL_CONFIG, ~/.config/supactl/config.yaml,
// /etc/supactl/config.yaml, ./config.yaml.
func Discover() (string, bool) {
	if path := os.Getenv("SUPACTL_CONFIG"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "supactl", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, true
		}
	}

	etcConfig := filepath.Join("/etc", "supactl", "config.yaml")
	if _, err := os.Stat(etcConfig); err == nil {
		return etcConfig, true
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", true
	}

	return "", false
}

// LoadOrDefaults loads the config at path, discovers one when path is
// empty, and falls back to Defaults when no file exists anywhere.
func LoadOrDefaults(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if found, ok := Discover(); ok {
		return Load(found)
	}
	return Defaults(), nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.Connector.Binary == "" {
		return fmt.Errorf("connector.binary is required")
	}
	if cfg.Connector.Server == "" {
		return fmt.Errorf("connector.server is required")
	}
	if cfg.Connector.Timeout <= 0 {
		return fmt.Errorf("connector.timeout must be positive")
	}
	if cfg.Connector.GracePeriod <= 0 {
		return fmt.Errorf("connector.grace_period must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", cfg.Log.Level)
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal is enabled")
	}
	if cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}

	if cfg.Relay.Enabled {
		if cfg.Relay.Listen == "" {
			return fmt.Errorf("relay.listen is required when relay is enabled")
		}
		if cfg.Relay.Auth.APIKey == "" {
			return fmt.Errorf("relay.auth.api_key is required when relay is enabled")
		}
		if envVarPattern.MatchString(cfg.Relay.Auth.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.Relay.Auth.APIKey)
			return fmt.Errorf("relay.auth.api_key references undefined environment variable %s", matches[0])
		}
	}

	return nil
}
