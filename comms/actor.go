// Package comms implements private messaging between actors: recipient
// resolution, last-contact memory, delivery fan-out and history queries.
//
// Actors, name lookup, permissions, presence and persistence are consumed
// through the interfaces declared here; package world and package store
// provide the concrete implementations.
package comms

import (
	"strings"
)

// VerbMsg is the permission verb checked before a private message is delivered.
const VerbMsg = "msg"

// Actor is a participant that can send and receive private messages.
type Actor interface {
	// Key returns the stable lowercase identity used in stored records.
	Key() string

	// Name returns the display name.
	Name() string

	// CanReceive reports whether sender may deliver verb to this actor.
	CanReceive(sender Actor, verb string) bool

	// IsOnline reports whether the actor currently has a live session.
	IsOnline() bool

	// Deliver enqueues text on the actor's inbound channel without blocking.
	Deliver(text string) error
}

// Ref is the identity and display name of an actor at the time a record was written.
type Ref struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// RefOf captures a's identity.
func RefOf(a Actor) Ref {
	return Ref{Key: a.Key(), Name: a.Name()}
}

// Names returns the display names of actors in order.
func Names(actors []Actor) []string {
	names := make([]string, len(actors))
	for i, a := range actors {
		names[i] = a.Name()
	}
	return names
}

// Target is a raw recipient: either a name still to be looked up or an
// already resolved actor handle.
type Target struct {
	name  string
	actor Actor
}

// NameTarget returns a target that must be looked up by name.
func NameTarget(name string) Target {
	return Target{name: name}
}

// HandleTarget returns a target that is already resolved.
func HandleTarget(a Actor) Target {
	return Target{actor: a}
}

// Name returns the name of a name target.
func (t Target) Name() (string, bool) {
	return t.name, t.actor == nil
}

// Handle returns the actor of a handle target.
func (t Target) Handle() (Actor, bool) {
	return t.actor, t.actor != nil
}

// String returns the name or the handle's display name.
func (t Target) String() string {
	if t.actor != nil {
		return t.actor.Name()
	}
	return t.name
}

// dedupKey identifies equal targets: names compare case-insensitively.
func (t Target) dedupKey() string {
	if t.actor != nil {
		return "h:" + t.actor.Key()
	}
	return "n:" + strings.ToLower(t.name)
}

// ParseTargets splits a comma separated target list into name targets.
// Blank entries are dropped.
func ParseTargets(list string) []Target {
	var targets []Target
	for _, part := range strings.Split(list, ",") {
		if name := strings.TrimSpace(part); name != "" {
			targets = append(targets, NameTarget(name))
		}
	}
	return targets
}

// RefTargets converts the receivers of a stored record into name targets.
func RefTargets(refs []Ref) []Target {
	targets := make([]Target, 0, len(refs))
	for _, ref := range refs {
		targets = append(targets, NameTarget(ref.Name))
	}
	return targets
}
