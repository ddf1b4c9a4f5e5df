package core

import (
	"time"

	"go.uber.org/zap"
)

// ActorID represents a unique identifier for an Actor.
type ActorID uint32

// MessageType defines the type of message being sent.
type MessageType uint8

// Message is one unit of outbound text queued for a character.
type Message struct {
	// ID is a per-system sequence number
	ID uint64

	// Type indicates the message category
	Type MessageType

	// Source is the key of the character that caused the message, if any
	Source string

	// Target is the ID of the receiving Actor
	Target ActorID

	// Text is the line to write
	Text string

	// Timestamp when the message was created
	Timestamp time.Time
}

// ActorState represents the current state of an Actor.
type ActorState uint8

const (
	// ActorStateIdle means the Actor is waiting for messages
	ActorStateIdle ActorState = iota

	// ActorStateRunning means the Actor is processing a message
	ActorStateRunning

	// ActorStateStopping means the Actor is shutting down
	ActorStateStopping

	// ActorStateStopped means the Actor has been stopped
	ActorStateStopped
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateIdle:
		return "idle"
	case ActorStateRunning:
		return "running"
	case ActorStateStopping:
		return "stopping"
	case ActorStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// MessageTypeText is a private message or other player-visible line
	MessageTypeText MessageType = iota

	// MessageTypeNotice is a server notice such as an idle warning
	MessageTypeNotice

	// MessageTypeClose asks the handler to close the session after earlier lines
	MessageTypeClose
)

// String returns the string representation of MessageType.
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeNotice:
		return "notice"
	case MessageTypeClose:
		return "close"
	default:
		return "unknown"
	}
}

// ActorOptions contains configuration options for creating an Actor.
type ActorOptions struct {
	// MailboxSize sets the size of the Actor's message queue
	MailboxSize int

	// Name is the registered name, normally the character key
	Name string

	// ProcessTimeout bounds a single HandleMessage call
	ProcessTimeout time.Duration

	// Logger receives handler errors
	Logger *zap.Logger
}

// DefaultActorOptions returns sensible default options.
func DefaultActorOptions() ActorOptions {
	return ActorOptions{
		MailboxSize:    64,
		ProcessTimeout: 5 * time.Second,
	}
}

// ActorStats contains runtime statistics for an Actor.
type ActorStats struct {
	ID                ActorID
	Name              string
	State             ActorState
	MessagesProcessed uint64
	MessagesDropped   uint64
	MailboxSize       int
	CreatedAt         time.Time
	LastMessageAt     time.Time
}
