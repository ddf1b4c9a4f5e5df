package world

import (
	"strings"
	"sync"

	"github.com/najoast/courier/comms"
)

// Everyone in a deny-list blocks all senders.
const Everyone = "*"

// Permissions holds static deny-lists keyed by recipient. A recipient's list
// names the senders whose private messages it refuses.
type Permissions struct {
	mu   sync.RWMutex
	deny map[string]map[string]struct{}
}

// NewPermissions builds deny-lists from recipient name to sender names.
func NewPermissions(blocks map[string][]string) *Permissions {
	p := &Permissions{}
	p.Replace(blocks)
	return p
}

// Replace swaps in new deny-lists, as after a config reload.
func (p *Permissions) Replace(blocks map[string][]string) {
	deny := make(map[string]map[string]struct{}, len(blocks))
	for recipient, senders := range blocks {
		set := make(map[string]struct{}, len(senders))
		for _, s := range senders {
			set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
		}
		deny[strings.ToLower(recipient)] = set
	}

	p.mu.Lock()
	p.deny = deny
	p.mu.Unlock()
}

// Allow reports whether sender may use verb on recipient. Only private
// messages are subject to deny-lists.
func (p *Permissions) Allow(sender, recipient, verb string) bool {
	if verb != comms.VerbMsg {
		return true
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	set, ok := p.deny[strings.ToLower(recipient)]
	if !ok {
		return true
	}
	if _, all := set[Everyone]; all && !strings.EqualFold(sender, recipient) {
		return false
	}
	_, blocked := set[strings.ToLower(sender)]
	return !blocked
}
