package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LifecycleManager starts services in dependency order and stops them in reverse.
type LifecycleManager struct {
	services     map[string]Service
	dependencies map[string][]string

	// startOrder holds the services that started, in order
	startOrder []string

	mutex    sync.RWMutex
	started  bool
	stopping bool

	eventChan chan LifecycleEvent

	// listeners run synchronously under the manager's lock and must not
	// call back into it
	listeners []func(LifecycleEvent)

	// timeout bounds each Start and Stop call
	timeout time.Duration

	log *zap.Logger
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(log *zap.Logger) *LifecycleManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &LifecycleManager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		eventChan:    make(chan LifecycleEvent, 100),
		timeout:      30 * time.Second,
		log:          log,
	}
}

// Register registers a service that starts after deps
func (lm *LifecycleManager) Register(name string, service Service, deps ...string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("cannot register service %s: lifecycle manager already started", name)
	}
	if _, exists := lm.services[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	lm.services[name] = service
	lm.dependencies[name] = deps

	lm.broadcastEvent(LifecycleEvent{Type: EventServiceRegistered, Service: name, Timestamp: time.Now()})
	return nil
}

// Start starts all services in dependency order. If one fails, the services
// already started are stopped again.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("lifecycle manager already started")
	}

	order, err := lm.calculateStartOrder()
	if err != nil {
		return &ApplicationError{Operation: "start", Err: err}
	}

	for _, name := range order {
		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := lm.services[name].Start(startCtx)
		cancel()

		if err != nil {
			lm.broadcastEvent(LifecycleEvent{Type: EventServiceStartFailed, Service: name, Timestamp: time.Now(), Error: err})
			lm.log.Error("service failed to start", zap.String("service", name), zap.Error(err))
			lm.stopStarted(ctx)
			return &ApplicationError{Operation: "start", Service: name, Err: err}
		}

		lm.startOrder = append(lm.startOrder, name)
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStarted, Service: name, Timestamp: time.Now()})
		lm.log.Debug("service started", zap.String("service", name))
	}

	lm.started = true
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStarted, Timestamp: time.Now()})
	return nil
}

// Stop stops all services in reverse start order. Every service is asked to
// stop even if an earlier one fails; the errors are joined.
func (lm *LifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	if lm.stopping {
		return fmt.Errorf("lifecycle manager already stopping")
	}

	lm.stopping = true
	err := lm.stopStarted(ctx)
	lm.started = false
	lm.stopping = false

	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStopped, Timestamp: time.Now()})
	return err
}

// stopStarted stops startOrder in reverse. Callers hold the lock.
func (lm *LifecycleManager) stopStarted(ctx context.Context) error {
	var errs []error

	for i := len(lm.startOrder) - 1; i >= 0; i-- {
		name := lm.startOrder[i]

		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := lm.services[name].Stop(stopCtx)
		cancel()

		if err != nil {
			errs = append(errs, &ApplicationError{Operation: "stop", Service: name, Err: err})
			lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopFailed, Service: name, Timestamp: time.Now(), Error: err})
			lm.log.Warn("service failed to stop", zap.String("service", name), zap.Error(err))
			continue
		}
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopped, Service: name, Timestamp: time.Now()})
		lm.log.Debug("service stopped", zap.String("service", name))
	}

	lm.startOrder = nil
	return errors.Join(errs...)
}

// Health returns the health status of all services
func (lm *LifecycleManager) Health(ctx context.Context) map[string]HealthStatus {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	health := make(map[string]HealthStatus, len(lm.services))
	for name, service := range lm.services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		status.LastCheck = time.Now()
		health[name] = status
	}
	return health
}

// Services returns all registered service names
func (lm *LifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Started returns the services that are running, in start order.
func (lm *LifecycleManager) Started() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	return append([]string(nil), lm.startOrder...)
}

// Events returns a channel for lifecycle events. Events are dropped when
// nobody reads it.
func (lm *LifecycleManager) Events() <-chan LifecycleEvent {
	return lm.eventChan
}

// AddListener adds a lifecycle event listener
func (lm *LifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.listeners = append(lm.listeners, listener)
}

// SetTimeout sets the timeout for service operations
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *LifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	return lm.started
}

// calculateStartOrder sorts services topologically (Kahn's algorithm). Ties
// are broken by name so the order is stable between runs.
func (lm *LifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for service := range lm.services {
		inDegree[service] = 0
	}
	for service, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("dependency %s of service %s is not registered", dep, service)
			}
			graph[dep] = append(graph[dep], service)
			inDegree[service]++
		}
	}

	var queue []string
	for service, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, service)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		dependents := graph[current]
		sort.Strings(dependents)
		for _, dependent := range dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(lm.services) {
		return nil, fmt.Errorf("circular dependency detected")
	}
	return result, nil
}

func (lm *LifecycleManager) broadcastEvent(event LifecycleEvent) {
	select {
	case lm.eventChan <- event:
	default:
	}

	for _, listener := range lm.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					lm.log.Error("lifecycle listener panicked", zap.Any("panic", r))
				}
			}()
			listener(event)
		}()
	}
}
