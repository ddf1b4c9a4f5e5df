package core

import (
	"context"
)

// MessageHandler processes incoming messages for an Actor.
type MessageHandler interface {
	// HandleMessage processes a single message.
	// It should return an error if processing fails.
	HandleMessage(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Actor is a mailbox drained by its own goroutine, one message at a time.
type Actor interface {
	// ID returns the unique identifier of this Actor.
	ID() ActorID

	// Name returns the name the Actor was registered under.
	Name() string

	// Start begins the Actor's message processing loop.
	// It should be called only once per Actor instance.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the Actor.
	// It will finish processing the current message before stopping.
	Stop() error

	// Send enqueues msg without blocking.
	// It returns ErrMailboxFull or ErrActorStopped when msg was not queued.
	Send(msg *Message) error

	// Stats returns current runtime statistics for this Actor.
	Stats() ActorStats
}

// Router manages message routing between Actors.
type Router interface {
	// Register adds an Actor to the routing table.
	Register(actor Actor) error

	// Unregister removes an Actor from the routing table.
	Unregister(id ActorID) error

	// Route sends a message to the target Actor.
	Route(msg *Message) error

	// Lookup finds an Actor by its ID.
	Lookup(id ActorID) (Actor, bool)

	// LookupName finds an Actor by its registered name.
	LookupName(name string) (Actor, bool)

	// List returns all registered Actor IDs.
	List() []ActorID
}

// ActorSystem manages the lifecycle of all Actors in the system.
type ActorSystem interface {
	// Spawn creates, registers and starts a named Actor.
	Spawn(name string, handler MessageHandler, opts ActorOptions) (Actor, error)

	// Lookup retrieves an Actor by name.
	Lookup(name string) (Actor, bool)

	// Send queues text for the named Actor.
	Send(source, to string, msgType MessageType, text string) error

	// Kill stops and unregisters the named Actor.
	Kill(name string) error

	// Shutdown gracefully stops all Actors in the system.
	Shutdown(ctx context.Context) error

	// Stats returns statistics for all Actors.
	Stats() []ActorStats
}
