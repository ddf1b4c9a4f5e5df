package comms

// Lookup finds an actor by name.
type Lookup interface {
	Lookup(name string) (Actor, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(name string) (Actor, bool)

// Lookup calls f.
func (f LookupFunc) Lookup(name string) (Actor, bool) {
	return f(name)
}

// Resolver turns raw targets into a deduplicated set of actors.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a resolver that looks names up through lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve resolves explicit, or fallback when explicit is empty.
//
// Targets that cannot be found are skipped. The result is never empty:
// ErrNoTarget is returned when both lists are empty and ErrTargetNotFound
// when nothing resolved.
func (r *Resolver) Resolve(explicit, fallback []Target) ([]Actor, error) {
	targets := explicit
	if len(targets) == 0 {
		targets = fallback
	}
	if len(targets) == 0 {
		return nil, ErrNoTarget
	}

	seenTarget := make(map[string]struct{}, len(targets))
	seenActor := make(map[string]struct{}, len(targets))
	var resolved []Actor

	for _, t := range targets {
		k := t.dedupKey()
		if _, dup := seenTarget[k]; dup {
			continue
		}
		seenTarget[k] = struct{}{}

		a, ok := t.Handle()
		if !ok {
			name, _ := t.Name()
			a, ok = r.lookup.Lookup(name)
			if !ok || a == nil {
				continue
			}
		}

		// Two names may resolve to the same actor.
		if _, dup := seenActor[a.Key()]; dup {
			continue
		}
		seenActor[a.Key()] = struct{}{}
		resolved = append(resolved, a)
	}

	if len(resolved) == 0 {
		return nil, ErrTargetNotFound
	}
	return resolved, nil
}
