package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// system implements the ActorSystem interface.
type system struct {
	router *router
	log    *zap.Logger
	mu     sync.Mutex

	// Default options for spawned actors
	defaults ActorOptions

	msgCounter uint64

	// System shutdown context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewActorSystem creates a new ActorSystem. Zero fields of defaults fall back
// to DefaultActorOptions.
func NewActorSystem(log *zap.Logger, defaults ActorOptions) ActorSystem {
	if log == nil {
		log = zap.NewNop()
	}
	base := DefaultActorOptions()
	if defaults.MailboxSize > 0 {
		base.MailboxSize = defaults.MailboxSize
	}
	if defaults.ProcessTimeout > 0 {
		base.ProcessTimeout = defaults.ProcessTimeout
	}
	base.Logger = log

	ctx, cancel := context.WithCancel(context.Background())

	return &system{
		router:   &router{},
		log:      log,
		defaults: base,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Spawn creates, registers and starts a named Actor.
func (s *system) Spawn(name string, handler MessageHandler, opts ActorOptions) (Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check if system is shutting down
	select {
	case <-s.ctx.Done():
		return nil, ErrSystemShutdown
	default:
	}

	// Apply defaults where needed
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = s.defaults.MailboxSize
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = s.defaults.ProcessTimeout
	}
	if opts.Logger == nil {
		opts.Logger = s.defaults.Logger
	}
	opts.Name = name

	actor := NewActor(s.router.NextID(), handler, opts)

	if err := s.router.Register(actor); err != nil {
		return nil, fmt.Errorf("failed to register actor: %w", err)
	}

	if err := actor.Start(s.ctx); err != nil {
		s.router.Unregister(actor.ID())
		return nil, fmt.Errorf("failed to start actor %s: %w", name, err)
	}

	s.log.Debug("actor spawned", zap.String("name", name), zap.Uint32("id", uint32(actor.ID())))
	return actor, nil
}

// Lookup retrieves an Actor by name.
func (s *system) Lookup(name string) (Actor, bool) {
	return s.router.LookupName(name)
}

// Send queues text for the named Actor.
func (s *system) Send(source, to string, msgType MessageType, text string) error {
	actor, exists := s.router.LookupName(to)
	if !exists {
		return fmt.Errorf("actor %q: %w", to, ErrActorNotFound)
	}

	msg := &Message{
		ID:        atomic.AddUint64(&s.msgCounter, 1),
		Type:      msgType,
		Source:    source,
		Target:    actor.ID(),
		Text:      text,
		Timestamp: time.Now(),
	}

	return s.router.Route(msg)
}

// Kill stops and unregisters the named Actor.
func (s *system) Kill(name string) error {
	actor, exists := s.router.LookupName(name)
	if !exists {
		return fmt.Errorf("actor %q: %w", name, ErrActorNotFound)
	}

	if err := s.router.Unregister(actor.ID()); err != nil {
		return err
	}
	return actor.Stop()
}

// Shutdown gracefully stops all Actors in the system.
func (s *system) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Signal shutdown
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range s.router.List() {
			if actor, exists := s.router.Lookup(id); exists {
				if err := actor.Stop(); err != nil {
					s.log.Debug("actor stop failed", zap.String("name", actor.Name()), zap.Error(err))
				}
				s.router.Unregister(id)
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns statistics for all Actors.
func (s *system) Stats() []ActorStats {
	var stats []ActorStats

	for _, id := range s.router.List() {
		if actor, exists := s.router.Lookup(id); exists {
			stats = append(stats, actor.Stats())
		}
	}

	return stats
}
