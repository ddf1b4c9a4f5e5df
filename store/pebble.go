// Package store provides comms.Store implementations: a pebble-backed log
// for production and an in-memory log for tests and throwaway servers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/najoast/courier/comms"
)

// Options configures a pebble store.
type Options struct {
	// CacheSize is the block cache size in bytes; 0 uses pebble's default
	CacheSize int64

	// FS overrides the filesystem; nil uses the local disk
	FS vfs.FS

	// ReadOnly opens an existing store without write access
	ReadOnly bool

	Logger *zap.Logger
}

// Pebble is a comms.Store on a pebble database.
//
// Each append writes the record and its sender and receiver index entries in
// one batch committed with fsync. A record is on disk before Append returns
// and is never without its indexes.
type Pebble struct {
	db   *pebble.DB
	opts Options
	log  *zap.Logger

	// mu serializes sequence allocation and batch commit; readers share it
	// so Close never runs under an open iterator
	mu     sync.RWMutex
	seq    uint64
	closed bool
}

// Open opens or creates a pebble store at path.
func Open(path string, opts Options) (*Pebble, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	popts := &pebble.Options{ReadOnly: opts.ReadOnly, FS: opts.FS}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		popts.Cache = cache
	}

	db, err := pebble.Open(path, popts)
	if err != nil {
		log.Error("pebble open failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}

	s := &Pebble{db: db, opts: opts, log: log}
	if err := s.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("store opened",
		zap.String("path", path),
		zap.Uint64("seq", s.seq),
		zap.Bool("read_only", opts.ReadOnly),
	)
	return s, nil
}

// Close closes the database. Further calls return ErrClosed.
func (s *Pebble) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Seq returns the sequence of the last appended record.
func (s *Pebble) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Append implements comms.Store.
func (s *Pebble) Append(ctx context.Context, rec *comms.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rec.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, rec.Kind)
	}
	if len(rec.Receivers) == 0 {
		return ErrNoReceivers
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	seq := s.seq + 1
	rec.Seq = seq

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(recordKey(seq), value, nil); err != nil {
		return err
	}
	if err := batch.Set(sentKey(rec.Kind, rec.Sender.Key, seq), nil, nil); err != nil {
		return err
	}
	for _, r := range rec.Receivers {
		if err := batch.Set(receivedKey(rec.Kind, r.Key, seq), nil, nil); err != nil {
			return err
		}
	}
	if err := batch.Set([]byte(SeqKey), []byte(strconv.FormatUint(seq, 10)), nil); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		rec.Seq = 0
		s.log.Error("append failed", zap.Uint64("seq", seq), zap.Error(err))
		return fmt.Errorf("failed to commit record %d: %w", seq, err)
	}

	s.seq = seq
	return nil
}

// Sent implements comms.Store.
func (s *Pebble) Sent(ctx context.Context, key string, kind comms.Kind) ([]comms.Record, error) {
	return s.scan(ctx, sentPrefix(kind, key))
}

// Received implements comms.Store.
func (s *Pebble) Received(ctx context.Context, key string, kind comms.Kind) ([]comms.Record, error) {
	return s.scan(ctx, receivedPrefix(kind, key))
}

// LastSent implements comms.Store by walking the sender index backwards.
func (s *Pebble) LastSent(ctx context.Context, key string, kind comms.Kind) (comms.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return comms.Record{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return comms.Record{}, false, ErrClosed
	}

	prefix := sentPrefix(kind, key)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return comms.Record{}, false, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	for valid := iter.Last(); valid; valid = iter.Prev() {
		seq, err := seqFromIndexKey(iter.Key())
		if err != nil {
			return comms.Record{}, false, err
		}
		rec, err := s.get(seq)
		if err != nil {
			return comms.Record{}, false, err
		}
		if rec.Channel == "" {
			return rec, true, nil
		}
	}
	return comms.Record{}, false, iter.Error()
}

// scan loads every record referenced by the index entries under prefix.
func (s *Pebble) scan(ctx context.Context, prefix []byte) ([]comms.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var records []comms.Record
	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := seqFromIndexKey(iter.Key())
		if err != nil {
			return nil, err
		}
		rec, err := s.get(seq)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Pebble) get(seq uint64) (comms.Record, error) {
	value, closer, err := s.db.Get(recordKey(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return comms.Record{}, fmt.Errorf("%w: seq %d", ErrMissingIndex, seq)
		}
		return comms.Record{}, err
	}
	defer closer.Close()

	var rec comms.Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return comms.Record{}, fmt.Errorf("failed to decode record %d: %w", seq, err)
	}
	return rec, nil
}

func (s *Pebble) loadSeq() error {
	value, closer, err := s.db.Get([]byte(SeqKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}
	defer closer.Close()

	seq, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt sequence %q: %w", value, err)
	}
	s.seq = seq
	return nil
}
