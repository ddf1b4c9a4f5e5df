package comms_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/store"
)

func TestParseLimit(t *testing.T) {
	n, err := comms.ParseLimit("", comms.DefaultHistoryLimit)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = comms.ParseLimit(" 12 ", comms.DefaultHistoryLimit)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	for _, bad := range []string{"0", "-3", "lots", "2.5"} {
		_, err := comms.ParseLimit(bad, comms.DefaultHistoryLimit)
		assert.ErrorIs(t, err, comms.ErrInvalidLimit, "input %q", bad)
	}
}

// historyFixture sends pages between alice, bob and carol one minute apart.
type historyFixture struct {
	store   comms.Store
	history *comms.History
	send    func(kind comms.Kind, from *fakeActor, body string, to ...*fakeActor)
}

func newHistoryFixture(t *testing.T, s comms.Store) *historyFixture {
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	d := comms.NewDispatcher(s, comms.WithClock(func() time.Time { return clock }))

	f := &historyFixture{store: s, history: comms.NewHistory(s)}
	f.send = func(kind comms.Kind, from *fakeActor, body string, to ...*fakeActor) {
		recipients := make([]comms.Actor, len(to))
		for i, a := range to {
			recipients[i] = a
		}
		_, err := d.Deliver(context.Background(), comms.Envelope{
			Kind: kind, Sender: from, Recipients: recipients, Body: body,
		})
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
	}
	return f
}

func bodies(records []comms.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Body
	}
	return out
}

func withStores(t *testing.T, fn func(t *testing.T, s comms.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, store.NewMemory()) })
	t.Run("pebble", func(t *testing.T) {
		s, err := store.Open(filepath.Join(t.TempDir(), "db"), store.Options{})
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func TestHistoryMergesAndTruncates(t *testing.T) {
	withStores(t, func(t *testing.T, s comms.Store) {
		alice, bob, carol := newActor("Alice", true), newActor("Bob", true), newActor("Carol", true)
		f := newHistoryFixture(t, s)
		ctx := context.Background()

		for i := 1; i <= 4; i++ {
			f.send(comms.KindPage, alice, fmt.Sprintf("a%d", i), bob)
			f.send(comms.KindPage, bob, fmt.Sprintf("b%d", i), alice)
		}
		f.send(comms.KindPage, carol, "unrelated", bob)
		f.send(comms.KindWhisper, bob, "whisper", alice)

		got, err := f.history.Query(ctx, "alice", comms.KindPage, comms.DefaultHistoryLimit, comms.Both)
		require.NoError(t, err)
		assert.Equal(t, []string{"b2", "a3", "b3", "a4", "b4"}, bodies(got))

		got, err = f.history.Query(ctx, "alice", comms.KindPage, 2, comms.Sent)
		require.NoError(t, err)
		assert.Equal(t, []string{"a3", "a4"}, bodies(got))

		got, err = f.history.Query(ctx, "alice", comms.KindPage, 1000, comms.Received)
		require.NoError(t, err)
		assert.Equal(t, []string{"b1", "b2", "b3", "b4"}, bodies(got))
	})
}

func TestHistorySaturatedLimitReturnsEverythingOnce(t *testing.T) {
	withStores(t, func(t *testing.T, s comms.Store) {
		alice, bob := newActor("Alice", true), newActor("Bob", true)
		f := newHistoryFixture(t, s)

		f.send(comms.KindPage, alice, "to bob", bob)
		f.send(comms.KindPage, alice, "note to self", alice)
		f.send(comms.KindPage, bob, "to alice", alice)
		f.send(comms.KindPage, alice, "self and bob", alice, bob)

		got, err := f.history.Query(context.Background(), "alice", comms.KindPage, 1000, comms.Both)
		require.NoError(t, err)
		assert.Equal(t, []string{"to bob", "note to self", "to alice", "self and bob"}, bodies(got))
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt))
		}
	})
}

func TestHistoryTiesBrokenByInsertionOrder(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)

	for _, body := range []string{"first", "second", "third"} {
		require.NoError(t, s.Append(ctx, &comms.Record{
			Kind:      comms.KindPage,
			Sender:    comms.Ref{Key: "bob", Name: "Bob"},
			Receivers: []comms.Ref{{Key: "alice", Name: "Alice"}},
			Body:      body,
			CreatedAt: at,
		}))
	}
	require.NoError(t, s.Append(ctx, &comms.Record{
		Kind:      comms.KindPage,
		Sender:    comms.Ref{Key: "alice", Name: "Alice"},
		Receivers: []comms.Ref{{Key: "bob", Name: "Bob"}},
		Body:      "reply",
		CreatedAt: at,
	}))

	got, err := comms.NewHistory(s).Query(ctx, "alice", comms.KindPage, 10, comms.Both)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third", "reply"}, bodies(got))
}

func TestHistoryEmptyAndInvalid(t *testing.T) {
	h := comms.NewHistory(store.NewMemory())
	ctx := context.Background()

	got, err := h.Query(ctx, "alice", comms.KindPage, 5, comms.Both)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = h.Query(ctx, "alice", comms.KindPage, 0, comms.Both)
	assert.ErrorIs(t, err, comms.ErrInvalidLimit)

	_, err = h.Query(ctx, "alice", comms.KindPage, -1, comms.Sent)
	assert.ErrorIs(t, err, comms.ErrInvalidLimit)

	_, err = h.Query(ctx, "alice", comms.KindPage, 5, comms.Filter(9))
	assert.ErrorIs(t, err, comms.ErrInvalidFilter)
}

func TestLastPaged(t *testing.T) {
	withStores(t, func(t *testing.T, s comms.Store) {
		alice, bob, carol := newActor("Alice", true), newActor("Bob", true), newActor("Carol", true)
		f := newHistoryFixture(t, s)
		ctx := context.Background()

		_, ok, err := f.history.LastPaged(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, ok)

		f.send(comms.KindPage, alice, "first", bob)
		f.send(comms.KindPage, alice, "group", bob, carol)
		f.send(comms.KindPage, carol, "not mine", alice)
		f.send(comms.KindWhisper, alice, "whisper", carol)

		last, ok, err := f.history.LastPaged(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "group", last.Body)
		assert.Equal(t, "Bob, Carol", last.ReceiverNames())
	})
}

func TestSessionState(t *testing.T) {
	s := comms.NewSessionState()
	_, ok := s.LastWhisper()
	assert.False(t, ok)

	s.SetLastWhisper("bob,carol")
	spec, ok := s.LastWhisper()
	assert.True(t, ok)
	assert.Equal(t, "bob,carol", spec)

	s.Reset()
	_, ok = s.LastWhisper()
	assert.False(t, ok)
}
