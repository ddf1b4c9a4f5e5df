package comms_test

import (
	"errors"
	"strings"
	"sync"

	"github.com/najoast/courier/comms"
)

// fakeActor is a scripted comms.Actor.
type fakeActor struct {
	name    string
	online  bool
	blocks  map[string]bool
	failErr error

	mu    sync.Mutex
	inbox []string
}

func newActor(name string, online bool) *fakeActor {
	return &fakeActor{name: name, online: online, blocks: map[string]bool{}}
}

func (a *fakeActor) Key() string    { return strings.ToLower(a.name) }
func (a *fakeActor) Name() string   { return a.name }
func (a *fakeActor) IsOnline() bool { return a.online }

func (a *fakeActor) CanReceive(sender comms.Actor, verb string) bool {
	return verb == comms.VerbMsg && !a.blocks[sender.Key()]
}

func (a *fakeActor) Deliver(text string) error {
	if a.failErr != nil {
		return a.failErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inbox = append(a.inbox, text)
	return nil
}

func (a *fakeActor) received() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.inbox...)
}

var errMailboxFull = errors.New("mailbox is full")

// directory is a name lookup over fake actors.
type directory map[string]*fakeActor

func newDirectory(actors ...*fakeActor) directory {
	d := directory{}
	for _, a := range actors {
		d[a.Key()] = a
	}
	return d
}

func (d directory) Lookup(name string) (comms.Actor, bool) {
	a, ok := d[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return a, true
}
