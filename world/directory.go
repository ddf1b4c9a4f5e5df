package world

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/core"
)

// NamePattern is the accepted shape of a character name.
var NamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{1,23}$`)

// DefaultRoom is used when no start room is configured.
const DefaultRoom = "Limbo"

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Directory) {
		if log != nil {
			d.log = log
		}
	}
}

// WithStartRoom sets the room new characters appear in.
func WithStartRoom(room string) Option {
	return func(d *Directory) {
		if room != "" {
			d.startRoom = room
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

// WithPresence registers a callback that receives the online count after
// every connect and disconnect.
func WithPresence(fn func(online int)) Option {
	return func(d *Directory) {
		d.presence = fn
	}
}

// Directory is the registry of every character seen since startup.
type Directory struct {
	system    core.ActorSystem
	perms     *Permissions
	log       *zap.Logger
	now       func() time.Time
	startRoom string
	presence  func(online int)

	mu    sync.RWMutex
	chars map[string]*Character
}

// NewDirectory creates a directory whose sessions get mailboxes from system.
func NewDirectory(system core.ActorSystem, perms *Permissions, opts ...Option) *Directory {
	if perms == nil {
		perms = NewPermissions(nil)
	}
	d := &Directory{
		system:    system,
		perms:     perms,
		log:       zap.NewNop(),
		now:       time.Now,
		startRoom: DefaultRoom,
		chars:     make(map[string]*Character),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Permissions returns the deny-lists consulted by CanReceive.
func (d *Directory) Permissions() *Permissions {
	return d.perms
}

// Connect attaches out to the named character, creating it on first login.
func (d *Directory) Connect(name string, out Outlet) (*Character, error) {
	if !NamePattern.MatchString(name) {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	key := strings.ToLower(name)

	d.mu.Lock()
	c, exists := d.chars[key]
	if !exists {
		c = &Character{key: key, name: name, dir: d, room: d.startRoom}
		d.chars[key] = c
	}
	d.mu.Unlock()

	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	c.mu.Lock()
	if c.online {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", c.name, ErrAlreadyConnected)
	}
	mailbox, err := d.system.Spawn(key, writer(out), core.ActorOptions{})
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("spawn mailbox for %s: %w", c.name, err)
	}
	now := d.now()
	c.online = true
	c.mailbox = mailbox
	c.session = comms.NewSessionState()
	c.lastActive = now
	c.mu.Unlock()

	d.log.Info("character connected", zap.String("name", c.name), zap.Bool("new", !exists))
	d.reportPresence()
	return c, nil
}

// Disconnect ends the session of c. Lines already queued are written before
// the mailbox stops, and a reconnect waits until it has. Calling it for an
// offline character does nothing.
func (d *Directory) Disconnect(c *Character) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	c.mu.Lock()
	if !c.online {
		c.mu.Unlock()
		return
	}
	c.online = false
	c.mailbox = nil
	c.session = nil
	c.lastSeen = d.now()
	c.mu.Unlock()

	if err := d.system.Kill(c.key); err != nil {
		d.log.Warn("stop mailbox", zap.String("name", c.name), zap.Error(err))
	}
	d.log.Info("character disconnected", zap.String("name", c.name))
	d.reportPresence()
}

// Find returns the character whose name matches exactly, or else the only
// character whose name starts with name. Matching ignores case.
func (d *Directory) Find(name string) (*Character, bool) {
	return d.find(name, nil)
}

// FindInRoom is Find restricted to online characters in room.
func (d *Directory) FindInRoom(room, name string) (*Character, bool) {
	return d.find(name, func(c *Character) bool {
		return c.IsOnline() && strings.EqualFold(c.Room(), room)
	})
}

// Lookup implements comms.Lookup over every known character.
func (d *Directory) Lookup(name string) (comms.Actor, bool) {
	c, ok := d.Find(name)
	if !ok {
		return nil, false
	}
	return c, true
}

// RoomLookup returns a comms.Lookup over the online characters in room.
func (d *Directory) RoomLookup(room string) comms.Lookup {
	return comms.LookupFunc(func(name string) (comms.Actor, bool) {
		c, ok := d.FindInRoom(room, name)
		if !ok {
			return nil, false
		}
		return c, true
	})
}

// Move puts c in room.
func (d *Directory) Move(c *Character, room string) {
	c.mu.Lock()
	from := c.room
	c.room = room
	c.mu.Unlock()
	d.log.Debug("character moved", zap.String("name", c.name), zap.String("from", from), zap.String("to", room))
}

// Online returns the connected characters sorted by name.
func (d *Directory) Online() []*Character {
	d.mu.RLock()
	var online []*Character
	for _, c := range d.chars {
		if c.IsOnline() {
			online = append(online, c)
		}
	}
	d.mu.RUnlock()

	sort.Slice(online, func(i, j int) bool { return online[i].key < online[j].key })
	return online
}

// Len returns the number of known characters.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.chars)
}

// DisconnectAll asks every online session to close and waits for their
// mailboxes to drain, or for ctx to end.
func (d *Directory) DisconnectAll(ctx context.Context, reason string) error {
	for _, c := range d.Online() {
		if err := c.Kick(reason); err != nil {
			d.log.Debug("kick", zap.String("name", c.name), zap.Error(err))
		}
	}
	return d.system.Shutdown(ctx)
}

func (d *Directory) find(name string, keep func(*Character) bool) (*Character, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if c, ok := d.chars[key]; ok && (keep == nil || keep(c)) {
		return c, true
	}

	var match *Character
	for k, c := range d.chars {
		if !strings.HasPrefix(k, key) || (keep != nil && !keep(c)) {
			continue
		}
		if match != nil {
			return nil, false
		}
		match = c
	}
	return match, match != nil
}

func (d *Directory) reportPresence() {
	if d.presence == nil {
		return
	}
	d.presence(len(d.Online()))
}

// writer returns the mailbox handler that copies queued lines to out.
func writer(out Outlet) core.MessageHandler {
	return core.HandlerFunc(func(ctx context.Context, msg *core.Message) error {
		if msg.Type == core.MessageTypeClose {
			return out.Close()
		}
		return out.Send(msg.Text)
	})
}
