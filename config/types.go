// Package config provides configuration management for the handshake simulation
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Config represents the complete handshake configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Responder and requester population
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`

	// Mailbox tuning
	Mailbox MailboxConfig `yaml:"mailbox" json:"mailbox"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// SimulationConfig describes the parties taking part in a run
type SimulationConfig struct {
	// Logout replies the responder sends before stopping. The same number of
	// requesters is spawned.
	LogoutThreshold int `yaml:"logout_threshold" json:"logout_threshold"`

	// Requester display names are NamePrefix followed by the id
	NamePrefix string `yaml:"name_prefix" json:"name_prefix"`
}

// MailboxConfig contains the retry intervals of the shared mailbox
type MailboxConfig struct {
	// Pause between attempts to publish into an occupied reply slot
	SendBackoff time.Duration `yaml:"send_backoff" json:"send_backoff"`

	// Pause between a requester's unsuccessful receive attempts
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// UnmarshalJSON accepts each interval either as a duration string such as
// "20ms" or as integer nanoseconds. Keys that are absent keep their value.
func (m *MailboxConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		SendBackoff  json.RawMessage `json:"send_backoff"`
		PollInterval json.RawMessage `json:"poll_interval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := decodeJSONDuration(raw.SendBackoff, &m.SendBackoff); err != nil {
		return fmt.Errorf("send_backoff: %w", err)
	}
	if err := decodeJSONDuration(raw.PollInterval, &m.PollInterval); err != nil {
		return fmt.Errorf("poll_interval: %w", err)
	}
	return nil
}

// MarshalJSON writes both intervals as duration strings.
func (m MailboxConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SendBackoff  string `json:"send_backoff"`
		PollInterval string `json:"poll_interval"`
	}{m.SendBackoff.String(), m.PollInterval.String()})
}

func decodeJSONDuration(raw json.RawMessage, dst *time.Duration) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
	var ns int64
	if err := json.Unmarshal(raw, &ns); err != nil {
		return err
	}
	*dst = time.Duration(ns)
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "handshake",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       false,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "json",
			Output: "stderr",
		},
		Simulation: SimulationConfig{
			LogoutThreshold: 10,
			NamePrefix:      "User",
		},
		Mailbox: MailboxConfig{
			SendBackoff:  20 * time.Millisecond,
			PollInterval: 20 * time.Millisecond,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return ErrInvalidLogFormat
	}

	// Validate simulation config
	if c.Simulation.LogoutThreshold <= 0 {
		return ErrInvalidLogoutThreshold
	}

	// Validate mailbox config
	if c.Mailbox.SendBackoff <= 0 || c.Mailbox.PollInterval <= 0 {
		return ErrInvalidBackoff
	}

	return nil
}

// GetLogLevel returns the log level, forced to debug when debug mode is on
func (c *Config) GetLogLevel() LogLevel {
	if c.App.Debug {
		return LogLevelDebug
	}
	return c.Log.Level
}

// RequesterName returns the display name of the requester with the given id
func (c *Config) RequesterName(id int) string {
	return c.Simulation.NamePrefix + strconv.Itoa(id)
}
