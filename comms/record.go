package comms

import (
	"context"
	"strings"
	"time"
)

// Kind separates pages from whispers in the record log.
type Kind string

const (
	KindPage    Kind = "page"
	KindWhisper Kind = "whisper"
)

// IsValid checks if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindPage || k == KindWhisper
}

// Record is one stored private message. It is never modified after Append.
type Record struct {
	// ID is a random unique identifier
	ID string `json:"id"`

	// Seq is the store insertion order, assigned at append
	Seq uint64 `json:"seq"`

	Kind      Kind      `json:"kind"`
	Sender    Ref       `json:"sender"`
	Receivers []Ref     `json:"receivers"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	// Channel is set only for broadcast records, which this package never writes
	Channel string `json:"channel,omitempty"`
}

// ReceiverNames joins the receivers' display names with ", ".
func (r Record) ReceiverNames() string {
	names := make([]string, len(r.Receivers))
	for i, ref := range r.Receivers {
		names[i] = ref.Name
	}
	return strings.Join(names, ", ")
}

// Filter selects which side of an actor's history to query.
type Filter uint8

const (
	Both Filter = iota
	Sent
	Received
)

// String returns the string representation of Filter.
func (f Filter) String() string {
	switch f {
	case Both:
		return "both"
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return "unknown"
	}
}

// IsValid reports whether f is one of Both, Sent or Received.
func (f Filter) IsValid() bool {
	return f <= Received
}

// ParseFilter maps "sent", "received" and "both" to a Filter.
func ParseFilter(s string) (Filter, bool) {
	switch strings.ToLower(s) {
	case "", "both":
		return Both, true
	case "sent":
		return Sent, true
	case "received":
		return Received, true
	default:
		return Both, false
	}
}

// Store is an append-only record log indexed by sender and receiver.
type Store interface {
	// Append assigns rec.Seq and persists rec atomically and durably.
	Append(ctx context.Context, rec *Record) error

	// Sent returns key's outgoing records of kind in insertion order.
	Sent(ctx context.Context, key string, kind Kind) ([]Record, error)

	// Received returns key's incoming records of kind in insertion order.
	Received(ctx context.Context, key string, kind Kind) ([]Record, error)

	// LastSent returns key's most recent outgoing record of kind that has no channel.
	LastSent(ctx context.Context, key string, kind Kind) (Record, bool, error)
}
