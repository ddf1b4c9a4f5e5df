package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
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

// envRef matches ${VAR} references in configuration files.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader handles configuration loading from files, readers and the environment
type Loader struct {
	searchPaths   []string
	envPrefix     string
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	paths := []string{".", "./config", "./configs", "/etc/courier"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".courier"))
	}
	return &Loader{
		searchPaths:   paths,
		envPrefix:     "COURIER",
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

// SetDefaultConfig sets the configuration that files are layered onto
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from filename, or discovers a file in the search
// paths when filename is empty. Environment overrides are applied last.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.AutoLoad()
	}
	return l.LoadFromFile(filename)
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return l.finish(config)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	return l.finish(config)
}

// AutoLoad loads the first configuration file found in the search paths, or
// the defaults when there is none.
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.FindConfigFile()
	if err == ErrConfigFileNotFound {
		return l.finish(l.defaults())
	}
	if err != nil {
		return nil, err
	}
	return l.LoadFromFile(configFile)
}

// FindConfigFile searches for configuration files in search paths
func (l *Loader) FindConfigFile() (string, error) {
	filenames := []string{
		"courier.yaml", "courier.yml",
		"config.yaml", "config.yml",
		"courier.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	return l.defaultConfig.Clone()
}

// parseConfig decodes data over a copy of the defaults, so keys missing from
// the file keep their default values.
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	data = expandEnv(data)
	config := l.defaults()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	return config, nil
}

func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// expandEnv replaces ${VAR} with the variable's value. Unset variables
// expand to the empty string.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// loadFromEnv applies PREFIX_SECTION_KEY overrides
func (l *Loader) loadFromEnv(config *Config) error {
	env := func(key string) string {
		return os.Getenv(l.envPrefix + "_" + key)
	}

	if val := env("APP_NAME"); val != "" {
		config.App.Name = val
	}
	if val := env("APP_ENVIRONMENT"); val != "" {
		config.App.Environment = Environment(val)
	}
	if val := env("APP_DEBUG"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s_APP_DEBUG: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.App.Debug = b
	}

	if val := env("LOG_LEVEL"); val != "" {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	if val := env("LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}
	if val := env("LOG_OUTPUT"); val != "" {
		config.Log.Output = val
	}

	if val := env("NETWORK_ADDRESS"); val != "" {
		config.Network.Address = val
	}
	if val := env("NETWORK_PORT"); val != "" {
		port, err := parsePort(val)
		if err != nil {
			return fmt.Errorf("%w: %s_NETWORK_PORT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Network.Port = port
	}

	if val := env("STORE_DRIVER"); val != "" {
		config.Store.Driver = val
	}
	if val := env("STORE_PATH"); val != "" {
		config.Store.Path = val
	}
	if val := env("STORE_CACHE_SIZE"); val != "" {
		config.Store.CacheSize = val
	}

	if val := env("SESSION_IDLE_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_SESSION_IDLE_TIMEOUT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Session.IdleTimeout = d
	}

	if val := env("MONITOR_ENABLED"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s_MONITOR_ENABLED: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Monitor.Enabled = b
	}
	if val := env("MONITOR_PORT"); val != "" {
		port, err := parsePort(val)
		if err != nil {
			return fmt.Errorf("%w: %s_MONITOR_PORT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Monitor.Port = port
	}

	return nil
}

func parsePort(val string) (int, error) {
	port, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if !validPort(port) {
		return 0, fmt.Errorf("invalid port number: %d", port)
	}
	return port, nil
}
