package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/najoast/courier/command"
	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/config"
	"github.com/najoast/courier/core"
	"github.com/najoast/courier/logging"
	"github.com/najoast/courier/markup"
	"github.com/najoast/courier/metrics"
	"github.com/najoast/courier/network"
	"github.com/najoast/courier/store"
	"github.com/najoast/courier/world"
)

// DefaultShutdownTimeout bounds a graceful shutdown started by a signal.
const DefaultShutdownTimeout = 30 * time.Second

// Application is a fully wired courier server.
type Application struct {
	cfg        *config.Config
	configFile string

	log     *zap.Logger
	level   zap.AtomicLevel
	syncLog bool

	lifecycle *LifecycleManager
	metrics   *metrics.Metrics

	store    comms.Store
	storeSvc *storeService

	dir         *world.Directory
	interpreter *command.Interpreter
	server      *network.Server
	monitor     *metrics.Server
	watcher     *config.Watcher

	// ctx is handed to every command and ends after shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// Option configures an Application.
type Option func(*Application)

// WithLogger uses log instead of building one from the configuration.
// level is adjusted when a reloaded configuration changes the log level.
func WithLogger(log *zap.Logger, level zap.AtomicLevel) Option {
	return func(app *Application) {
		app.log = log
		app.level = level
	}
}

// WithConfigFile enables hot reload of path.
func WithConfigFile(path string) Option {
	return func(app *Application) {
		app.configFile = path
	}
}

// WithStore uses st instead of opening the configured driver. The caller
// keeps ownership of st.
func WithStore(st comms.Store) Option {
	return func(app *Application) {
		app.store = st
	}
}

// New builds the server described by cfg. Nothing listens until Start.
// cfg is expected to have been validated by the loader.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	app := &Application{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}

	if app.log == nil {
		log, level, err := logging.New(cfg.Log, cfg.IsDebugEnabled())
		if err != nil {
			return nil, err
		}
		app.log, app.level, app.syncLog = log, level, true
	}
	app.log = app.log.With(zap.String("app", cfg.App.Name))

	app.metrics = metrics.New()
	app.lifecycle = NewLifecycleManager(app.log.Named("lifecycle"))
	app.ctx, app.cancel = context.WithCancel(context.Background())

	if err := app.openStore(); err != nil {
		app.cancel()
		return nil, err
	}
	if err := app.wire(); err != nil {
		app.storeSvc.Stop(context.Background())
		app.cancel()
		return nil, err
	}
	return app, nil
}

func (app *Application) openStore() error {
	if app.store != nil {
		app.storeSvc = &storeService{store: app.store}
		return nil
	}

	switch app.cfg.Store.Driver {
	case config.DriverMemory:
		app.store = store.NewMemory()
		app.storeSvc = &storeService{store: app.store}
		return nil

	case config.DriverPebble:
		cacheSize, err := app.cfg.Store.CacheBytes()
		if err != nil {
			return err
		}
		path := app.cfg.StorePath()
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
		db, err := store.Open(path, store.Options{
			CacheSize: cacheSize,
			Logger:    app.log.Named("store"),
		})
		if err != nil {
			return err
		}
		app.store = db
		app.storeSvc = &storeService{store: db, close: db.Close}
		return nil

	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidStoreDriver, app.cfg.Store.Driver)
	}
}

func (app *Application) wire() error {
	cfg := app.cfg

	system := core.NewActorSystem(app.log.Named("actors"), core.ActorOptions{MailboxSize: cfg.Comms.MailboxSize})
	app.dir = world.NewDirectory(system, world.NewPermissions(cfg.Comms.Blocks),
		world.WithLogger(app.log.Named("world")),
		world.WithStartRoom(cfg.Comms.StartRoom),
		world.WithPresence(app.metrics.SetOnline),
	)

	dispatcher := comms.NewDispatcher(app.store,
		comms.WithLogger(app.log.Named("comms")),
		comms.WithObserver(app.metrics),
	)
	app.interpreter = command.NewInterpreter(app.dir, dispatcher, comms.NewHistory(app.store),
		command.WithLogger(app.log.Named("command")),
		command.WithRenderer(markup.NewRenderer(cfg.Comms.Colour)),
		command.WithSettings(command.Settings{
			HistoryLimit: cfg.Comms.HistoryLimit,
			PageQuote:    cfg.Comms.PageQuote,
			WhisperQuote: cfg.Comms.WhisperQuote,
		}),
	)

	gateway := command.NewGateway(app.ctx, app.interpreter, app.dir, cfg.Comms.Banner, app.log.Named("gateway"))
	server, err := network.NewServer(networkConfig(cfg.Network), gateway,
		network.WithLogger(app.log.Named("network")),
		network.WithLimitHook(app.metrics.LineLimited),
	)
	if err != nil {
		return err
	}
	app.server = server

	if err := app.lifecycle.Register("store", app.storeSvc); err != nil {
		return err
	}
	if err := app.lifecycle.Register("gateway", &gatewayService{server: server, dir: app.dir}, "store"); err != nil {
		return err
	}

	if cfg.Monitor.Enabled {
		app.monitor = metrics.NewServer(cfg.Monitor, app.metrics, app.healthy, app.log.Named("monitor"))
		if err := app.lifecycle.Register("monitor", &monitorService{server: app.monitor}); err != nil {
			return err
		}
	}

	if cfg.Session.IdleTimeout > 0 {
		sweeper, err := world.NewSweeper(app.dir, cfg.Session.SweepSchedule, cfg.Session.IdleTimeout, app.log.Named("sweeper"))
		if err != nil {
			return err
		}
		sweeper.OnSweep(app.metrics.Swept)
		if err := app.lifecycle.Register("sweeper", &sweeperService{sweeper: sweeper, idle: cfg.Session.IdleTimeout}, "gateway"); err != nil {
			return err
		}
	}

	if app.configFile != "" {
		watcher, err := config.NewWatcher(app.configFile, config.NewLoader(), config.WithWatchLogger(app.log.Named("config")))
		if err != nil {
			return err
		}
		watcher.OnConfigChange(app.applyConfig)
		app.watcher = watcher
		if err := app.lifecycle.Register("config-watcher", &watchService{watcher: watcher}, "gateway"); err != nil {
			return err
		}
	}

	return nil
}

func networkConfig(c config.NetworkConfig) *network.Config {
	out := network.DefaultConfig()
	out.Address = c.Address
	out.Port = c.Port
	out.ReadTimeout = c.Timeouts.Read
	out.WriteTimeout = c.Timeouts.Write
	out.KeepAlive = c.KeepAlive
	out.KeepAliveInterval = c.KeepAliveInterval
	out.MaxConnections = c.MaxConnections
	out.MaxLineLength = c.MaxLineLength
	out.SendQueue = c.SendQueue
	out.LineRate = c.RateLimit.Lines
	out.LineBurst = c.RateLimit.Burst
	return out
}

// Start starts every service.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.running {
		return fmt.Errorf("application is already running")
	}
	if err := app.lifecycle.Start(ctx); err != nil {
		// The store may not have been reached; closing it twice is harmless.
		app.storeSvc.Stop(ctx)
		return err
	}
	app.running = true

	app.log.Info("courier started",
		zap.String("version", app.cfg.App.Version),
		zap.String("environment", app.cfg.App.Environment.String()),
		zap.Stringer("addr", app.server.Addr()),
	)
	return nil
}

// Run starts the server and blocks until ctx ends or the process receives
// SIGINT or SIGTERM, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	app.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

// Shutdown stops every service in reverse start order.
func (app *Application) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.running {
		return nil
	}
	app.running = false

	err := app.lifecycle.Stop(ctx)
	app.cancel()

	if err != nil {
		app.log.Error("shutdown incomplete", zap.Error(err))
	} else {
		app.log.Info("courier stopped")
	}
	if app.syncLog {
		_ = app.log.Sync()
	}
	return err
}

// Addr returns the line server's address once started.
func (app *Application) Addr() net.Addr {
	return app.server.Addr()
}

// MonitorAddr returns the monitor's address, or nil when it is disabled or not started.
func (app *Application) MonitorAddr() net.Addr {
	if app.monitor == nil {
		return nil
	}
	return app.monitor.Addr()
}

// Directory returns the character directory.
func (app *Application) Directory() *world.Directory {
	return app.dir
}

// Health reports the health of every service.
func (app *Application) Health(ctx context.Context) map[string]HealthStatus {
	return app.lifecycle.Health(ctx)
}

func (app *Application) healthy() error {
	if !app.lifecycle.IsStarted() {
		return errors.New("not started")
	}
	return nil
}

// applyConfig applies the settings that can change without a restart: the
// log level and the block lists.
func (app *Application) applyConfig(old, cur *config.Config) {
	if cur.Log.Level != old.Log.Level && app.level != (zap.AtomicLevel{}) {
		if lvl, err := logging.ParseLevel(cur.Log.Level); err == nil {
			app.level.SetLevel(lvl)
			app.log.Info("log level changed", zap.Stringer("level", lvl))
		}
	}

	app.dir.Permissions().Replace(cur.Comms.Blocks)
	app.log.Info("block lists reloaded", zap.Int("recipients", len(cur.Comms.Blocks)))

	if cur.Network != old.Network || cur.Store != old.Store || cur.Monitor != old.Monitor {
		app.log.Warn("network, store and monitor changes take effect after a restart")
	}
}
