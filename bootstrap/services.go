package bootstrap

import (
	"context"
	"time"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/config"
	"github.com/najoast/courier/metrics"
	"github.com/najoast/courier/network"
	"github.com/najoast/courier/store"
	"github.com/najoast/courier/world"
)

// ShutdownNotice is sent to every session when the server stops.
const ShutdownNotice = "The server is shutting down. Goodbye."

// storeService closes the record store after everything using it has stopped.
type storeService struct {
	store comms.Store
	close func() error
}

func (s *storeService) Name() string                    { return "store" }
func (s *storeService) Start(ctx context.Context) error { return nil }

func (s *storeService) Stop(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (s *storeService) Health(ctx context.Context) (HealthStatus, error) {
	switch st := s.store.(type) {
	case *store.Pebble:
		return HealthStatus{State: HealthHealthy, Data: map[string]any{"driver": config.DriverPebble, "seq": st.Seq()}}, nil
	case *store.Memory:
		return HealthStatus{State: HealthHealthy, Data: map[string]any{"driver": config.DriverMemory, "records": st.Len()}}, nil
	default:
		return HealthStatus{State: HealthUnknown}, nil
	}
}

// gatewayService runs the line server. Stopping it tells every character
// the server is going away and lets their mailboxes drain before the
// listener and remaining sockets close.
type gatewayService struct {
	server *network.Server
	dir    *world.Directory
}

func (s *gatewayService) Name() string { return "gateway" }

func (s *gatewayService) Start(ctx context.Context) error {
	return s.server.Start()
}

func (s *gatewayService) Stop(ctx context.Context) error {
	drainErr := s.dir.DisconnectAll(ctx, ShutdownNotice)
	if err := s.server.Stop(); err != nil {
		return err
	}
	return drainErr
}

func (s *gatewayService) Health(ctx context.Context) (HealthStatus, error) {
	stats := s.server.Statistics()
	return HealthStatus{
		State: HealthHealthy,
		Data: map[string]any{
			"connections": stats.CurrentConnections,
			"online":      len(s.dir.Online()),
		},
	}, nil
}

// monitorService serves /metrics and /health.
type monitorService struct {
	server *metrics.Server
}

func (s *monitorService) Name() string                    { return "monitor" }
func (s *monitorService) Start(ctx context.Context) error { return s.server.Start() }
func (s *monitorService) Stop(ctx context.Context) error  { return s.server.Stop(ctx) }

func (s *monitorService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy}, nil
}

// sweeperService disconnects idle sessions on a cron schedule.
type sweeperService struct {
	sweeper *world.Sweeper
	idle    time.Duration
}

func (s *sweeperService) Name() string { return "sweeper" }

// Start detaches from ctx, which only bounds the start call itself.
func (s *sweeperService) Start(ctx context.Context) error {
	return s.sweeper.Start(context.WithoutCancel(ctx))
}

func (s *sweeperService) Stop(ctx context.Context) error {
	s.sweeper.Stop()
	return nil
}

func (s *sweeperService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy, Data: map[string]any{"idle_timeout": s.idle.String()}}, nil
}

// watchService reloads the configuration file when it changes.
type watchService struct {
	watcher *config.Watcher
}

func (s *watchService) Name() string                    { return "config-watcher" }
func (s *watchService) Start(ctx context.Context) error { return s.watcher.Start() }
func (s *watchService) Stop(ctx context.Context) error  { return s.watcher.Stop() }

func (s *watchService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy}, nil
}
