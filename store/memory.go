package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/najoast/courier/comms"
)

// Memory is a comms.Store kept in a slice. Records are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	records []comms.Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Append implements comms.Store.
func (m *Memory) Append(ctx context.Context, rec *comms.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rec.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, rec.Kind)
	}
	if len(rec.Receivers) == 0 {
		return ErrNoReceivers
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec.Seq = uint64(len(m.records)) + 1
	stored := *rec
	stored.Receivers = append([]comms.Ref(nil), rec.Receivers...)
	m.records = append(m.records, stored)
	return nil
}

// Sent implements comms.Store.
func (m *Memory) Sent(ctx context.Context, key string, kind comms.Kind) ([]comms.Record, error) {
	return m.filter(ctx, kind, func(r *comms.Record) bool {
		return r.Sender.Key == key
	})
}

// Received implements comms.Store.
func (m *Memory) Received(ctx context.Context, key string, kind comms.Kind) ([]comms.Record, error) {
	return m.filter(ctx, kind, func(r *comms.Record) bool {
		for _, ref := range r.Receivers {
			if ref.Key == key {
				return true
			}
		}
		return false
	})
}

// LastSent implements comms.Store.
func (m *Memory) LastSent(ctx context.Context, key string, kind comms.Kind) (comms.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return comms.Record{}, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.Kind == kind && r.Sender.Key == key && r.Channel == "" {
			return r, true, nil
		}
	}
	return comms.Record{}, false, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) filter(ctx context.Context, kind comms.Kind, match func(*comms.Record) bool) ([]comms.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []comms.Record
	for i := range m.records {
		if m.records[i].Kind == kind && match(&m.records[i]) {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}
