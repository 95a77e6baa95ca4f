// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// Loader handles configuration loading from various sources
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"./configs",
			"/etc/handshake",
			os.Getenv("HOME") + "/.handshake",
		},
		envPrefix:     "HANDSHAKE",
		defaultConfig: DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// defaults returns a private copy of the default configuration
func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	c := *l.defaultConfig
	return &c
}

// Load loads configuration from the specified file, or from defaults and
// environment alone when filename is empty
func (l *Loader) Load(filename string) (*Config, error) {
	if filename != "" {
		config, err := l.loadFromFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", filename, err)
		}
		return config, nil
	}

	return l.finish(l.defaults())
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	return l.loadFromFile(filename)
}

// LoadFromReader loads configuration from an io.Reader. Values missing from
// the input keep their defaults; environment overrides are not applied.
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	return l.parseConfig(data, format, l.defaults())
}

// AutoLoad automatically discovers and loads configuration. It also returns
// the file it read, empty when no search path holds one and only defaults
// and the environment applied.
func (l *Loader) AutoLoad() (*Config, string, error) {
	configFile, _, err := l.findConfigFile()
	if err != nil {
		if errors.Is(err, ErrConfigFileNotFound) {
			config, err := l.finish(l.defaults())
			return config, "", err
		}
		return nil, "", err
	}

	config, err := l.loadFromFile(configFile)
	if err != nil {
		return nil, "", err
	}
	return config, configFile, nil
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, ConfigFormat, error) {
	filenames := []string{
		"handshake.yaml", "handshake.yml",
		"config.yaml", "config.yml",
		"handshake.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				format, err := formatFromPath(filename)
				if err != nil {
					continue
				}
				return fullPath, format, nil
			}
		}
	}

	return "", "", ErrConfigFileNotFound
}

// formatFromPath determines the configuration format from a file extension
func formatFromPath(path string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
}

// loadFromFile loads configuration from a file layered over the defaults
func (l *Loader) loadFromFile(filename string) (*Config, error) {
	format, err := formatFromPath(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := l.parseConfig(data, format, l.defaults())
	if err != nil {
		return nil, err
	}

	return l.finish(config)
}

// finish applies environment overrides and validates
func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// parseConfig decodes data on top of base, so absent keys keep base values
func (l *Loader) parseConfig(data []byte, format ConfigFormat, base *Config) (*Config, error) {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, base); err != nil {
			return nil, fmt.Errorf("%w: YAML: %v", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, base); err != nil {
			return nil, fmt.Errorf("%w: JSON: %v", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	return base, nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	// App configuration
	if val := l.env("APP_NAME"); val != "" {
		config.App.Name = val
	}
	if val := l.env("APP_VERSION"); val != "" {
		config.App.Version = val
	}
	if val := l.env("APP_ENVIRONMENT"); val != "" {
		config.App.Environment = Environment(val)
	}
	if val := l.env("APP_DEBUG"); val != "" {
		config.App.Debug = strings.ToLower(val) == "true"
	}

	// Log configuration
	if val := l.env("LOG_LEVEL"); val != "" {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	if val := l.env("LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}
	if val := l.env("LOG_OUTPUT"); val != "" {
		config.Log.Output = val
	}

	// Simulation configuration
	if val := l.env("SIMULATION_LOGOUT_THRESHOLD"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s_SIMULATION_LOGOUT_THRESHOLD=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.Simulation.LogoutThreshold = n
	}
	if val := l.env("SIMULATION_NAME_PREFIX"); val != "" {
		config.Simulation.NamePrefix = val
	}

	// Mailbox configuration
	if val := l.env("MAILBOX_SEND_BACKOFF"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_MAILBOX_SEND_BACKOFF=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.Mailbox.SendBackoff = d
	}
	if val := l.env("MAILBOX_POLL_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_MAILBOX_POLL_INTERVAL=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.Mailbox.PollInterval = d
	}

	return nil
}

func (l *Loader) env(key string) string {
	return os.Getenv(l.envPrefix + "_" + key)
}
