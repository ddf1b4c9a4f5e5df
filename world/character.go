package world

import (
	"fmt"
	"sync"
	"time"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/core"
)

// Outlet is the write side of a session.
type Outlet interface {
	Send(line string) error
	Close() error
}

// Character is a named participant. It outlives its sessions: the directory
// keeps offline characters so pages to them can still be recorded.
type Character struct {
	key  string
	name string
	dir  *Directory

	// sessionMu serializes Connect and Disconnect, so a new session never
	// sees the previous session's mailbox still registered
	sessionMu sync.Mutex

	mu         sync.RWMutex
	room       string
	online     bool
	mailbox    core.Actor
	session    *comms.SessionState
	lastActive time.Time
	lastSeen   time.Time
}

// Key returns the lowercase identity.
func (c *Character) Key() string { return c.key }

// Name returns the display name chosen at first login.
func (c *Character) Name() string { return c.name }

// Room returns the current room.
func (c *Character) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// IsOnline reports whether the character has a live session.
func (c *Character) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// CanReceive consults the directory's deny-lists.
func (c *Character) CanReceive(sender comms.Actor, verb string) bool {
	return c.dir.perms.Allow(sender.Key(), c.key, verb)
}

// Deliver queues a private message line on the character's mailbox.
func (c *Character) Deliver(text string) error {
	return c.send(core.MessageTypeText, text)
}

// Notify queues a line addressed to the character by the server.
func (c *Character) Notify(text string) error {
	return c.send(core.MessageTypeNotice, text)
}

// Session returns the memory of the current session, or nil when offline.
func (c *Character) Session() *comms.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Touch marks activity at t.
func (c *Character) Touch(t time.Time) {
	c.mu.Lock()
	c.lastActive = t
	c.mu.Unlock()
}

// IdleFor returns how long the character has been inactive at now.
func (c *Character) IdleFor(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Sub(c.lastActive)
}

// LastSeen returns when the last session ended.
func (c *Character) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Kick queues a notice followed by a close, so the session ends after
// everything already queued has been written.
func (c *Character) Kick(reason string) error {
	if reason != "" {
		if err := c.Notify(reason); err != nil {
			return err
		}
	}
	return c.send(core.MessageTypeClose, "")
}

func (c *Character) send(t core.MessageType, text string) error {
	c.mu.RLock()
	mailbox, online := c.mailbox, c.online
	c.mu.RUnlock()

	if !online || mailbox == nil {
		return fmt.Errorf("%s: %w", c.name, ErrOffline)
	}
	return mailbox.Send(&core.Message{
		Type:      t,
		Source:    c.key,
		Target:    mailbox.ID(),
		Text:      text,
		Timestamp: c.dir.now(),
	})
}
