package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName        = errors.New("invalid application name")
	ErrInvalidEnvironment    = errors.New("invalid environment")
	ErrInvalidLogLevel       = errors.New("invalid log level")
	ErrInvalidLogFormat      = errors.New("invalid log format")
	ErrInvalidPort           = errors.New("invalid port number")
	ErrInvalidMaxConnections = errors.New("invalid max connections")
	ErrInvalidLineLength     = errors.New("invalid max line length")
	ErrInvalidRateLimit      = errors.New("invalid rate limit")
	ErrInvalidStoreDriver    = errors.New("invalid store driver")
	ErrInvalidCacheSize      = errors.New("invalid cache size")
	ErrInvalidHistoryLimit   = errors.New("invalid history limit")
	ErrInvalidMailboxSize    = errors.New("invalid mailbox size")
	ErrInvalidIdleTimeout    = errors.New("invalid idle timeout")
	ErrInvalidSchedule       = errors.New("invalid sweep schedule")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
