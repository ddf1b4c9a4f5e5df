package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// actor implements the Actor interface.
type actor struct {
	id      ActorID
	name    string
	handler MessageHandler
	log     *zap.Logger

	// Channel for receiving messages
	mailbox chan *Message

	// Context for controlling the Actor lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for graceful shutdown
	wg sync.WaitGroup

	// Atomic counters for statistics
	state             int32 // ActorState
	started           int32
	messagesProcessed uint64
	messagesDropped   uint64
	createdAt         time.Time
	lastMessageAt     int64 // Unix timestamp

	// Actor options
	opts ActorOptions
}

// NewActor creates a new Actor instance.
func NewActor(id ActorID, handler MessageHandler, opts ActorOptions) Actor {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultActorOptions().MailboxSize
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = DefaultActorOptions().ProcessTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	a := &actor{
		id:        id,
		name:      opts.Name,
		handler:   handler,
		log:       log,
		mailbox:   make(chan *Message, opts.MailboxSize),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
		opts:      opts,
	}

	// Set initial state
	atomic.StoreInt32(&a.state, int32(ActorStateIdle))

	return a
}

// ID returns the unique identifier of this Actor.
func (a *actor) ID() ActorID {
	return a.id
}

// Name returns the registered name of this Actor.
func (a *actor) Name() string {
	return a.name
}

// Start begins the Actor's message processing loop.
func (a *actor) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&a.started, 0, 1) {
		return fmt.Errorf("actor %d: %w", a.id, ErrAlreadyStarted)
	}

	// Stop the actor when the owning context ends
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				a.cancel()
			case <-a.ctx.Done():
			}
		}()
	}

	a.wg.Add(1)
	go a.messageLoop()

	return nil
}

// Stop gracefully shuts down the Actor.
func (a *actor) Stop() error {
	// Set state to stopping
	if !atomic.CompareAndSwapInt32(&a.state, int32(ActorStateIdle), int32(ActorStateStopping)) &&
		!atomic.CompareAndSwapInt32(&a.state, int32(ActorStateRunning), int32(ActorStateStopping)) {
		return fmt.Errorf("actor %d cannot be stopped from state %s",
			a.id, ActorState(atomic.LoadInt32(&a.state)))
	}

	// Cancel context to signal shutdown
	a.cancel()

	// Wait for message loop to finish
	a.wg.Wait()

	// Set final state
	atomic.StoreInt32(&a.state, int32(ActorStateStopped))

	return nil
}

// Send enqueues msg without blocking.
func (a *actor) Send(msg *Message) error {
	currentState := ActorState(atomic.LoadInt32(&a.state))
	if currentState == ActorStateStopped || currentState == ActorStateStopping {
		return fmt.Errorf("actor %d (%s): %w", a.id, currentState, ErrActorStopped)
	}

	select {
	case <-a.ctx.Done():
		return fmt.Errorf("actor %d: %w", a.id, ErrActorStopped)
	default:
	}

	select {
	case a.mailbox <- msg:
		return nil
	default:
		atomic.AddUint64(&a.messagesDropped, 1)
		return fmt.Errorf("actor %d: %w", a.id, ErrMailboxFull)
	}
}

// Stats returns current runtime statistics for this Actor.
func (a *actor) Stats() ActorStats {
	lastMsg := atomic.LoadInt64(&a.lastMessageAt)
	var lastMessageAt time.Time
	if lastMsg > 0 {
		lastMessageAt = time.Unix(lastMsg, 0)
	}

	return ActorStats{
		ID:                a.id,
		Name:              a.name,
		State:             ActorState(atomic.LoadInt32(&a.state)),
		MessagesProcessed: atomic.LoadUint64(&a.messagesProcessed),
		MessagesDropped:   atomic.LoadUint64(&a.messagesDropped),
		MailboxSize:       len(a.mailbox),
		CreatedAt:         a.createdAt,
		LastMessageAt:     lastMessageAt,
	}
}

// messageLoop is the main processing loop for the Actor.
func (a *actor) messageLoop() {
	defer a.wg.Done()

	for {
		select {
		case msg := <-a.mailbox:
			if msg == nil {
				continue
			}
			a.processMessage(msg)

		case <-a.ctx.Done():
			a.drainMailbox()
			return
		}
	}
}

// processMessage handles a single message.
func (a *actor) processMessage(msg *Message) {
	// Running -> Idle, unless Stop moved us to Stopping meanwhile
	if atomic.CompareAndSwapInt32(&a.state, int32(ActorStateIdle), int32(ActorStateRunning)) {
		defer atomic.CompareAndSwapInt32(&a.state, int32(ActorStateRunning), int32(ActorStateIdle))
	}

	// Update statistics
	atomic.AddUint64(&a.messagesProcessed, 1)
	atomic.StoreInt64(&a.lastMessageAt, time.Now().Unix())

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.ProcessTimeout)
	defer cancel()

	if err := a.handler.HandleMessage(ctx, msg); err != nil {
		a.log.Debug("message handler failed",
			zap.String("actor", a.name),
			zap.Stringer("type", msg.Type),
			zap.Error(err),
		)
	}
}

// drainMailbox flushes messages queued before shutdown so a closing session
// still sees lines sent ahead of the close.
func (a *actor) drainMailbox() {
	for {
		select {
		case msg := <-a.mailbox:
			if msg != nil {
				a.processMessage(msg)
			}
		default:
			return
		}
	}
}
