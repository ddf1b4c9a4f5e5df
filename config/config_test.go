package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Comms.HistoryLimit)
	assert.Equal(t, "'", cfg.Comms.PageQuote)
	assert.Equal(t, `"`, cfg.Comms.WhisperQuote)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsDebugEnabled())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"empty app name", func(c *Config) { c.App.Name = "" }, ErrInvalidAppName},
		{"unknown environment", func(c *Config) { c.App.Environment = "moon" }, ErrInvalidEnvironment},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, ErrInvalidLogLevel},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
		{"port", func(c *Config) { c.Network.Port = 70000 }, ErrInvalidPort},
		{"max connections", func(c *Config) { c.Network.MaxConnections = 0 }, ErrInvalidMaxConnections},
		{"line length", func(c *Config) { c.Network.MaxLineLength = 0 }, ErrInvalidLineLength},
		{"rate without burst", func(c *Config) { c.Network.RateLimit.Burst = 0 }, ErrInvalidRateLimit},
		{"store driver", func(c *Config) { c.Store.Driver = "sqlite" }, ErrInvalidStoreDriver},
		{"cache size", func(c *Config) { c.Store.CacheSize = "lots" }, ErrInvalidCacheSize},
		{"history limit", func(c *Config) { c.Comms.HistoryLimit = 0 }, ErrInvalidHistoryLimit},
		{"mailbox size", func(c *Config) { c.Comms.MailboxSize = -1 }, ErrInvalidMailboxSize},
		{"idle timeout", func(c *Config) { c.Session.IdleTimeout = -time.Second }, ErrInvalidIdleTimeout},
		{"schedule", func(c *Config) { c.Session.SweepSchedule = "every minute" }, ErrInvalidSchedule},
		{"monitor port", func(c *Config) { c.Monitor.Port = -1 }, ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidationSkipsDisabledParts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.RateLimit = RateLimitConfig{}
	cfg.Session = SessionConfig{}
	cfg.Monitor = MonitorConfig{}
	cfg.Store = StoreConfig{Driver: DriverMemory, CacheSize: "lots"}
	assert.NoError(t, cfg.Validate())
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("data", "development", "records"), cfg.StorePath())

	cfg.App.Environment = EnvProduction
	assert.Equal(t, "/var/lib/courier/records", cfg.StorePath())

	cfg.Store.Path = "/srv/courier"
	assert.Equal(t, "/srv/courier", cfg.StorePath())
}

func TestCacheBytes(t *testing.T) {
	n, err := StoreConfig{CacheSize: "64 MiB"}.CacheBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), n)

	n, err = StoreConfig{CacheSize: "8MB"}.CacheBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8_000_000), n)

	n, err = StoreConfig{}.CacheBytes()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCloneCopiesBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Comms.Blocks = map[string][]string{"bob": {"alice"}}

	clone := cfg.Clone()
	clone.Comms.Blocks["bob"][0] = "carol"
	clone.Comms.Blocks["dave"] = []string{"*"}

	assert.Equal(t, map[string][]string{"bob": {"alice"}}, cfg.Comms.Blocks)
}

func TestLoaderYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "courier.yaml", `
app:
  name: test-courier
  environment: staging
network:
  port: 4201
  rate_limit:
    lines: 2
    burst: 4
store:
  driver: memory
comms:
  history_limit: 10
  start_room: Hall
  blocks:
    bob: ["alice", "carol"]
session:
  idle_timeout: 30m
  sweep_schedule: "*/5 * * * *"
`)

	cfg, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test-courier", cfg.App.Name)
	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.Equal(t, 4201, cfg.Network.Port)
	assert.Equal(t, 2.0, cfg.Network.RateLimit.Lines)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Comms.HistoryLimit)
	assert.Equal(t, "Hall", cfg.Comms.StartRoom)
	assert.Equal(t, []string{"alice", "carol"}, cfg.Comms.Blocks["bob"])
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)

	// Keys missing from the file keep their defaults.
	assert.Equal(t, "'", cfg.Comms.PageQuote)
	assert.Equal(t, 4096, cfg.Network.MaxLineLength)
	assert.Equal(t, LogLevelInfo, cfg.Log.Level)
}

func TestLoaderJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "courier.json", `{
  "app": {"name": "json-courier"},
  "log": {"level": "debug", "format": "json"},
  "comms": {"page_quote": "\""}
}`)

	cfg, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "json-courier", cfg.App.Name)
	assert.Equal(t, LogLevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, `"`, cfg.Comms.PageQuote)
	assert.Equal(t, 4000, cfg.Network.Port)
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader().LoadFromFile(writeFile(t, dir, "courier.toml", "x = 1"))
	assert.ErrorContains(t, err, "unsupported config file format")

	_, err = NewLoader().LoadFromFile(writeFile(t, dir, "broken.yaml", "app: [unclosed"))
	assert.ErrorIs(t, err, ErrConfigParseError)

	_, err = NewLoader().LoadFromFile(writeFile(t, dir, "invalid.yaml", "comms:\n  history_limit: -1\n"))
	assert.ErrorIs(t, err, ErrInvalidHistoryLimit)

	_, err = NewLoader().LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoaderFromReader(t *testing.T) {
	cfg, err := NewLoader().LoadFromReader(strings.NewReader("app:\n  name: piped\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "piped", cfg.App.Name)
}

func TestLoaderExpandsVariables(t *testing.T) {
	t.Setenv("COURIER_TEST_ROOM", "Atrium")
	path := writeFile(t, t.TempDir(), "courier.yaml", `
comms:
  start_room: ${COURIER_TEST_ROOM}
  banner: "Welcome to ${COURIER_TEST_UNSET}the $HOME"
`)

	cfg, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Atrium", cfg.Comms.StartRoom)
	assert.Equal(t, "Welcome to the $HOME", cfg.Comms.Banner)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("COURIER_APP_NAME", "env-courier")
	t.Setenv("COURIER_NETWORK_PORT", "7777")
	t.Setenv("COURIER_LOG_LEVEL", "ERROR")
	t.Setenv("COURIER_STORE_PATH", "/tmp/records")
	t.Setenv("COURIER_SESSION_IDLE_TIMEOUT", "2h")
	t.Setenv("COURIER_MONITOR_ENABLED", "false")

	path := writeFile(t, t.TempDir(), "courier.yaml", "app:\n  name: file-courier\nnetwork:\n  port: 4100\n")

	cfg, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env-courier", cfg.App.Name)
	assert.Equal(t, 7777, cfg.Network.Port)
	assert.Equal(t, LogLevelError, cfg.Log.Level)
	assert.Equal(t, "/tmp/records", cfg.StorePath())
	assert.Equal(t, 2*time.Hour, cfg.Session.IdleTimeout)
	assert.False(t, cfg.Monitor.Enabled)
}

func TestEnvironmentOverrideErrors(t *testing.T) {
	t.Setenv("COURIER_NETWORK_PORT", "http")
	_, err := NewLoader().SetSearchPaths(nil).AutoLoad()
	assert.ErrorIs(t, err, ErrEnvironmentVarError)
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("CHAT_APP_NAME", "prefixed")
	cfg, err := NewLoader().SetSearchPaths(nil).SetEnvPrefix("CHAT").AutoLoad()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.App.Name)
}

func TestAutoLoad(t *testing.T) {
	empty := t.TempDir()
	cfg, err := NewLoader().SetSearchPaths([]string{empty}).AutoLoad()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	dir := t.TempDir()
	writeFile(t, dir, "config.yml", "app:\n  name: found\n")

	loader := NewLoader().SetSearchPaths([]string{empty, dir})
	found, err := loader.FindConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yml"), found)

	cfg, err = loader.Load("")
	require.NoError(t, err)
	assert.Equal(t, "found", cfg.App.Name)
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "courier.yaml", "comms:\n  history_limit: 3\n")

	w, err := NewWatcher(path, NewLoader(), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, w.GetConfig().Comms.HistoryLimit)

	changes := make(chan [2]int, 4)
	w.OnConfigChange(func(old, cur *Config) {
		changes <- [2]int{old.Comms.HistoryLimit, cur.Comms.HistoryLimit}
	})
	w.OnConfigChange(func(_, _ *Config) { panic("ignored") })

	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, dir, "courier.yaml", "comms:\n  history_limit: 8\n")

	select {
	case got := <-changes:
		assert.Equal(t, [2]int{3, 8}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
	assert.Equal(t, 8, w.GetConfig().Comms.HistoryLimit)
}

func TestWatcherKeepsConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "courier.yaml", "comms:\n  history_limit: 3\n")

	w, err := NewWatcher(path, NewLoader())
	require.NoError(t, err)

	writeFile(t, dir, "courier.yaml", "comms:\n  history_limit: 0\n")
	assert.ErrorIs(t, w.Reload(), ErrInvalidHistoryLimit)
	assert.Equal(t, 3, w.GetConfig().Comms.HistoryLimit)

	writeFile(t, dir, "courier.yaml", "comms:\n  history_limit: 4\n")
	require.NoError(t, w.Reload())
	assert.Equal(t, 4, w.GetConfig().Comms.HistoryLimit)
	assert.NoError(t, w.Stop())
}
