package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/najoast/courier/comms"
	"github.com/najoast/courier/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type outlet struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (o *outlet) Send(line string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, line)
	return nil
}

func (o *outlet) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *outlet) got() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}

func (o *outlet) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func newDirectory(t *testing.T, opts ...Option) *Directory {
	t.Helper()
	sys := core.NewActorSystem(nil, core.ActorOptions{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sys.Shutdown(ctx))
	})
	return NewDirectory(sys, nil, opts...)
}

func TestConnect(t *testing.T) {
	dir := newDirectory(t, WithStartRoom("Plaza"))

	out := &outlet{}
	alice, err := dir.Connect("Alice", out)
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Key())
	assert.Equal(t, "Alice", alice.Name())
	assert.Equal(t, "Plaza", alice.Room())
	assert.True(t, alice.IsOnline())
	assert.NotNil(t, alice.Session())

	_, err = dir.Connect("ALICE", &outlet{})
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	for _, bad := range []string{"", "a", "1abc", "bad name", "waytoolongnamethatkeepsgoing"} {
		_, err := dir.Connect(bad, &outlet{})
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}

	require.NoError(t, alice.Deliver("Bob pages: 'hi'"))
	require.Eventually(t, func() bool { return len(out.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Bob pages: 'hi'", out.got()[0])
}

func TestDisconnectKeepsCharacter(t *testing.T) {
	dir := newDirectory(t)

	alice, err := dir.Connect("Alice", &outlet{})
	require.NoError(t, err)
	alice.Session().SetLastWhisper("bob")

	dir.Disconnect(alice)
	dir.Disconnect(alice)
	assert.False(t, alice.IsOnline())
	assert.Nil(t, alice.Session())
	assert.False(t, alice.LastSeen().IsZero())
	assert.ErrorIs(t, alice.Deliver("late"), ErrOffline)
	assert.Equal(t, 1, dir.Len())

	found, ok := dir.Find("alice")
	require.True(t, ok)
	assert.Same(t, alice, found)

	// A new session starts with fresh whisper memory.
	again, err := dir.Connect("alice", &outlet{})
	require.NoError(t, err)
	assert.Same(t, alice, again)
	assert.Equal(t, "Alice", again.Name())
	_, ok = again.Session().LastWhisper()
	assert.False(t, ok)
}

func TestReconnectWhileDisconnecting(t *testing.T) {
	dir := newDirectory(t)

	for i := 0; i < 200; i++ {
		alice, err := dir.Connect("Alice", &outlet{})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			dir.Disconnect(alice)
		}()

		for {
			_, err := dir.Connect("Alice", &outlet{})
			if err == nil {
				break
			}
			require.ErrorIs(t, err, ErrAlreadyConnected)
		}
		<-done
		dir.Disconnect(alice)
	}
	assert.Empty(t, dir.Online())
}

func TestFind(t *testing.T) {
	dir := newDirectory(t)
	for _, name := range []string{"Bob", "Bobby", "Carol"} {
		_, err := dir.Connect(name, &outlet{})
		require.NoError(t, err)
	}

	c, ok := dir.Find("BOB")
	require.True(t, ok)
	assert.Equal(t, "Bob", c.Name())

	c, ok = dir.Find("car")
	require.True(t, ok)
	assert.Equal(t, "Carol", c.Name())

	_, ok = dir.Find("bo")
	assert.False(t, ok, "ambiguous prefix")

	_, ok = dir.Find("  ")
	assert.False(t, ok)

	actor, ok := dir.Lookup("bobby")
	require.True(t, ok)
	assert.Equal(t, "bobby", actor.Key())
}

func TestFindInRoom(t *testing.T) {
	dir := newDirectory(t, WithStartRoom("Plaza"))
	alice, err := dir.Connect("Alice", &outlet{})
	require.NoError(t, err)
	bob, err := dir.Connect("Bob", &outlet{})
	require.NoError(t, err)
	carol, err := dir.Connect("Carol", &outlet{})
	require.NoError(t, err)

	dir.Move(carol, "Tower")
	dir.Disconnect(bob)

	lookup := dir.RoomLookup(alice.Room())
	_, ok := lookup.Lookup("carol")
	assert.False(t, ok, "other room")
	_, ok = lookup.Lookup("bob")
	assert.False(t, ok, "offline")

	found, ok := dir.RoomLookup("tower").Lookup("car")
	require.True(t, ok)
	assert.Equal(t, "carol", found.Key())
}

func TestOnlineAndPresence(t *testing.T) {
	var counts []int
	dir := newDirectory(t, WithPresence(func(n int) { counts = append(counts, n) }))

	carol, err := dir.Connect("Carol", &outlet{})
	require.NoError(t, err)
	_, err = dir.Connect("alice", &outlet{})
	require.NoError(t, err)
	dir.Disconnect(carol)

	online := dir.Online()
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].Name())
	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestKickWritesThenCloses(t *testing.T) {
	dir := newDirectory(t)
	out := &outlet{}
	alice, err := dir.Connect("Alice", out)
	require.NoError(t, err)

	require.NoError(t, alice.Deliver("first"))
	require.NoError(t, alice.Kick("bye"))

	require.Eventually(t, out.isClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "bye"}, out.got())
}

func TestPermissions(t *testing.T) {
	perms := NewPermissions(map[string][]string{
		"Alice": {"Bob"},
		"carol": {Everyone},
	})

	assert.False(t, perms.Allow("bob", "alice", comms.VerbMsg))
	assert.True(t, perms.Allow("bob", "alice", "look"))
	assert.True(t, perms.Allow("dave", "alice", comms.VerbMsg))
	assert.False(t, perms.Allow("dave", "carol", comms.VerbMsg))
	assert.True(t, perms.Allow("carol", "carol", comms.VerbMsg), "self is never blocked by *")

	perms.Replace(nil)
	assert.True(t, perms.Allow("bob", "alice", comms.VerbMsg))
}

func TestCharacterCanReceive(t *testing.T) {
	dir := newDirectory(t)
	dir.Permissions().Replace(map[string][]string{"alice": {"bob"}})

	alice, err := dir.Connect("Alice", &outlet{})
	require.NoError(t, err)
	bob, err := dir.Connect("Bob", &outlet{})
	require.NoError(t, err)

	assert.False(t, alice.CanReceive(bob, comms.VerbMsg))
	assert.True(t, bob.CanReceive(alice, comms.VerbMsg))
}

func TestSweeper(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dir := newDirectory(t, WithClock(clock))

	idleOut := &outlet{}
	idle, err := dir.Connect("Idle", idleOut)
	require.NoError(t, err)
	busy, err := dir.Connect("Busy", &outlet{})
	require.NoError(t, err)

	_, err = NewSweeper(dir, "not a cron", time.Minute, nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	sweeper, err := NewSweeper(dir, "* * * * *", 10*time.Minute, nil)
	require.NoError(t, err)
	var swept []int
	sweeper.OnSweep(func(n int) { swept = append(swept, n) })

	later := now.Add(15 * time.Minute)
	busy.Touch(later.Add(-time.Minute))

	assert.Equal(t, 1, sweeper.Sweep(later))
	require.Eventually(t, idleOut.isClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{IdleMessage}, idleOut.got())
	assert.Equal(t, []int{1}, swept)

	// Closing the outlet is the network layer's cue to disconnect.
	dir.Disconnect(idle)
	assert.Equal(t, 0, sweeper.Sweep(later))
}

func TestSweeperStartStop(t *testing.T) {
	dir := newDirectory(t)
	sweeper, err := NewSweeper(dir, "0 3 * * *", time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, sweeper.Start(context.Background()))
	sweeper.Stop()
}
