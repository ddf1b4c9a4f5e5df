package comms

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultHistoryLimit is how many records a history query returns when no count is given.
const DefaultHistoryLimit = 5

// ParseLimit reads a user supplied count. Blank input yields def.
func ParseLimit(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q: %w", raw, ErrInvalidLimit)
	}
	return n, nil
}

// History answers history and last-contact questions from the record store.
// It keeps no state of its own.
type History struct {
	store Store
}

// NewHistory creates a history engine over store.
func NewHistory(store Store) *History {
	return &History{store: store}
}

// Query returns up to limit of key's records of kind, oldest first.
//
// With Both, sent and received records are merged; a message an actor sent
// to itself appears once. Records are ordered by CreatedAt, ties by Seq, and
// only the most recent limit are kept.
func (h *History) Query(ctx context.Context, key string, kind Kind, limit int, filter Filter) ([]Record, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if !filter.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFilter, filter)
	}

	var records []Record
	if filter == Both || filter == Sent {
		sent, err := h.store.Sent(ctx, key, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to load sent %ss for %s: %w", kind, key, err)
		}
		records = append(records, sent...)
	}
	if filter == Both || filter == Received {
		received, err := h.store.Received(ctx, key, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to load received %ss for %s: %w", kind, key, err)
		}
		records = append(records, received...)
	}

	records = dedupBySeq(records)
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Seq < records[j].Seq
	})

	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// LastPaged returns the most recent page key sent, skipping channel records.
// It always reads the store.
func (h *History) LastPaged(ctx context.Context, key string) (Record, bool, error) {
	rec, ok, err := h.store.LastSent(ctx, key, KindPage)
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load last page for %s: %w", key, err)
	}
	return rec, ok, nil
}

func dedupBySeq(records []Record) []Record {
	seen := make(map[uint64]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		if _, dup := seen[r.Seq]; dup {
			continue
		}
		seen[r.Seq] = struct{}{}
		out = append(out, r)
	}
	return out
}
