// Package config provides configuration management for the courier server
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
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

// Store drivers
const (
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// Config represents the complete courier configuration
type Config struct {
	App     AppConfig     `yaml:"app" json:"app"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Network NetworkConfig `yaml:"network" json:"network"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Comms   CommsConfig   `yaml:"comms" json:"comms"`
	Session SessionConfig `yaml:"session" json:"session"`
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string      `yaml:"name" json:"name"`
	Version     string      `yaml:"version" json:"version"`
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug switches logging to the development encoder
	Debug bool `yaml:"debug" json:"debug"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, console)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// NetworkConfig contains the line server configuration
type NetworkConfig struct {
	Address           string        `yaml:"address" json:"address"`
	Port              int           `yaml:"port" json:"port"`
	KeepAlive         bool          `yaml:"keep_alive" json:"keep_alive"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval" json:"keep_alive_interval"`
	MaxConnections    int           `yaml:"max_connections" json:"max_connections"`

	// Lines longer than this end the session
	MaxLineLength int `yaml:"max_line_length" json:"max_line_length"`

	// Outbound lines buffered per session
	SendQueue int `yaml:"send_queue" json:"send_queue"`

	Timeouts  TimeoutConfig   `yaml:"timeouts" json:"timeouts"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// TimeoutConfig contains timeout settings
type TimeoutConfig struct {
	Read  time.Duration `yaml:"read" json:"read"`
	Write time.Duration `yaml:"write" json:"write"`
}

// RateLimitConfig limits the commands one session may issue
type RateLimitConfig struct {
	// Lines per second; 0 disables the limiter
	Lines float64 `yaml:"lines" json:"lines"`
	Burst int     `yaml:"burst" json:"burst"`
}

// StoreConfig selects and tunes the record store
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`

	// Path of the pebble directory; empty uses the environment default
	Path string `yaml:"path" json:"path"`

	// Block cache size, e.g. "64 MiB"
	CacheSize string `yaml:"cache_size" json:"cache_size"`
}

// CommsConfig contains messaging settings
type CommsConfig struct {
	// Default number of records shown by "pages"
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`

	PageQuote    string `yaml:"page_quote" json:"page_quote"`
	WhisperQuote string `yaml:"whisper_quote" json:"whisper_quote"`

	// Queued outbound messages per character
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size"`

	StartRoom string `yaml:"start_room" json:"start_room"`
	Banner    string `yaml:"banner" json:"banner"`

	// Colour enables ANSI colouring of names
	Colour bool `yaml:"colour" json:"colour"`

	// Blocks maps a recipient to the senders it refuses messages from;
	// "*" refuses everyone
	Blocks map[string][]string `yaml:"blocks,omitempty" json:"blocks,omitempty"`
}

// SessionConfig contains idle session handling
type SessionConfig struct {
	// IdleTimeout disconnects sessions idle longer than this; 0 disables
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// SweepSchedule is the cron expression the idle sweep runs on
	SweepSchedule string `yaml:"sweep_schedule" json:"sweep_schedule"`
}

// MonitorConfig contains the metrics endpoint configuration
type MonitorConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Address     string `yaml:"address" json:"address"`
	Port        int    `yaml:"port" json:"port"`
	MetricsPath string `yaml:"metrics_path" json:"metrics_path"`
	HealthPath  string `yaml:"health_path" json:"health_path"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "courier",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "console",
			Output: "stdout",
		},
		Network: NetworkConfig{
			Address:           "0.0.0.0",
			Port:              4000,
			KeepAlive:         true,
			KeepAliveInterval: 60 * time.Second,
			MaxConnections:    1000,
			MaxLineLength:     4096,
			SendQueue:         256,
			Timeouts: TimeoutConfig{
				Read:  0,
				Write: 30 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Lines: 5,
				Burst: 10,
			},
		},
		Store: StoreConfig{
			Driver:    DriverPebble,
			CacheSize: "64 MiB",
		},
		Comms: CommsConfig{
			HistoryLimit: 5,
			PageQuote:    "'",
			WhisperQuote: `"`,
			MailboxSize:  256,
			StartRoom:    "Limbo",
			Colour:       true,
		},
		Session: SessionConfig{
			IdleTimeout:   time.Hour,
			SweepSchedule: "* * * * *",
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Address:     "127.0.0.1",
			Port:        9090,
			MetricsPath: "/metrics",
			HealthPath:  "/health",
		},
	}
}

// DefaultStorePath returns the pebble directory used when none is configured.
func DefaultStorePath(env Environment) string {
	switch env {
	case EnvProduction:
		return "/var/lib/courier/records"
	case EnvStaging:
		return filepath.Join("data", "staging", "records")
	case EnvTesting:
		return filepath.Join("data", "testing", "records")
	default:
		return filepath.Join("data", "development", "records")
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	if c.Comms.Blocks != nil {
		out.Comms.Blocks = make(map[string][]string, len(c.Comms.Blocks))
		for k, v := range c.Comms.Blocks {
			out.Comms.Blocks[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return ErrInvalidLogFormat
	}

	if !validPort(c.Network.Port) {
		return ErrInvalidPort
	}
	if c.Network.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.Network.MaxLineLength <= 0 {
		return ErrInvalidLineLength
	}
	if c.Network.RateLimit.Lines < 0 || (c.Network.RateLimit.Lines > 0 && c.Network.RateLimit.Burst <= 0) {
		return ErrInvalidRateLimit
	}

	switch c.Store.Driver {
	case DriverPebble:
		if _, err := c.Store.CacheBytes(); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return ErrInvalidStoreDriver
	}

	if c.Comms.HistoryLimit <= 0 {
		return ErrInvalidHistoryLimit
	}
	if c.Comms.MailboxSize <= 0 {
		return ErrInvalidMailboxSize
	}

	if c.Session.IdleTimeout < 0 {
		return ErrInvalidIdleTimeout
	}
	if c.Session.IdleTimeout > 0 && !gronx.IsValid(c.Session.SweepSchedule) {
		return fmt.Errorf("%w: %q", ErrInvalidSchedule, c.Session.SweepSchedule)
	}

	if c.Monitor.Enabled && !validPort(c.Monitor.Port) {
		return ErrInvalidPort
	}

	return nil
}

// CacheBytes parses CacheSize. An empty size is 0.
func (s StoreConfig) CacheBytes() (int64, error) {
	if s.CacheSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s.CacheSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCacheSize, err)
	}
	return int64(n), nil
}

// StorePath returns the configured store path or the environment default.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return DefaultStorePath(c.App.Environment)
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}

func validPort(port int) bool {
	return port >= 0 && port <= 65535
}
