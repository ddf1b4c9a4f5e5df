package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects the text of every handled message.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) HandleMessage(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, msg.Text)
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestNewActor(t *testing.T) {
	opts := DefaultActorOptions()
	opts.Name = "alice"

	actor := NewActor(1, &recorder{}, opts)

	assert.Equal(t, ActorID(1), actor.ID())
	assert.Equal(t, "alice", actor.Name())

	stats := actor.Stats()
	assert.Equal(t, "alice", stats.Name)
	assert.Equal(t, ActorStateIdle, stats.State)
}

func TestActorStartStop(t *testing.T) {
	actor := NewActor(2, &recorder{}, DefaultActorOptions())

	require.NoError(t, actor.Start(context.Background()))
	assert.ErrorIs(t, actor.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, actor.Stop())
	assert.Equal(t, ActorStateStopped, actor.Stats().State)

	err := actor.Send(&Message{Text: "too late"})
	assert.ErrorIs(t, err, ErrActorStopped)
}

func TestActorDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	actor := NewActor(3, rec, DefaultActorOptions())
	require.NoError(t, actor.Start(context.Background()))

	for _, line := range []string{"one", "two", "three"} {
		require.NoError(t, actor.Send(&Message{Type: MessageTypeText, Text: line}))
	}

	require.Eventually(t, func() bool { return len(rec.got()) == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, actor.Stop())

	assert.Equal(t, []string{"one", "two", "three"}, rec.got())
	assert.Equal(t, uint64(3), actor.Stats().MessagesProcessed)
}

func TestActorSendNeverBlocks(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	})

	opts := DefaultActorOptions()
	opts.MailboxSize = 1
	actor := NewActor(4, handler, opts)
	require.NoError(t, actor.Start(context.Background()))

	// First message occupies the handler, second fills the mailbox.
	require.NoError(t, actor.Send(&Message{Text: "busy"}))
	<-entered
	require.NoError(t, actor.Send(&Message{Text: "queued"}))

	err := actor.Send(&Message{Text: "overflow"})
	assert.ErrorIs(t, err, ErrMailboxFull)
	assert.Equal(t, uint64(1), actor.Stats().MessagesDropped)

	close(release)
	require.NoError(t, actor.Stop())
}

func TestStopDrainsQueuedMessages(t *testing.T) {
	release := make(chan struct{})
	rec := &recorder{}
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		if msg.Text == "first" {
			<-release
		}
		return rec.HandleMessage(ctx, msg)
	})

	actor := NewActor(5, handler, DefaultActorOptions())
	require.NoError(t, actor.Start(context.Background()))
	require.NoError(t, actor.Send(&Message{Text: "first"}))
	require.NoError(t, actor.Send(&Message{Text: "second"}))

	stopped := make(chan error, 1)
	go func() { stopped <- actor.Stop() }()
	close(release)

	require.NoError(t, <-stopped)
	assert.Equal(t, []string{"first", "second"}, rec.got())
}

func TestRouter(t *testing.T) {
	router := NewRouter()
	opts := DefaultActorOptions()

	opts.Name = "Alice"
	alice := NewActor(10, &recorder{}, opts)
	opts.Name = "bob"
	bob := NewActor(20, &recorder{}, opts)

	require.NoError(t, router.Register(alice))
	require.NoError(t, router.Register(bob))

	opts.Name = "ALICE"
	err := router.Register(NewActor(30, &recorder{}, opts))
	assert.ErrorIs(t, err, ErrDuplicateActor)

	found, ok := router.Lookup(10)
	require.True(t, ok)
	assert.Equal(t, ActorID(10), found.ID())

	found, ok = router.LookupName("alice")
	require.True(t, ok)
	assert.Equal(t, ActorID(10), found.ID())

	assert.Len(t, router.List(), 2)

	require.NoError(t, router.Unregister(10))
	_, ok = router.LookupName("alice")
	assert.False(t, ok)
	assert.ErrorIs(t, router.Unregister(10), ErrActorNotFound)

	err = router.Route(&Message{Target: 99})
	assert.ErrorIs(t, err, ErrActorNotFound)
}

func TestActorSystem(t *testing.T) {
	sys := NewActorSystem(nil, ActorOptions{MailboxSize: 8})
	rec := &recorder{}

	alice, err := sys.Spawn("alice", rec, ActorOptions{})
	require.NoError(t, err)
	assert.Equal(t, 8, cap(alice.(*actor).mailbox))

	_, err = sys.Spawn("Alice", rec, ActorOptions{})
	assert.ErrorIs(t, err, ErrDuplicateActor)

	found, ok := sys.Lookup("ALICE")
	require.True(t, ok)
	assert.Equal(t, alice.ID(), found.ID())

	require.NoError(t, sys.Send("bob", "alice", MessageTypeText, "Bob pages: 'hi'"))
	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Bob pages: 'hi'", rec.got()[0])

	assert.ErrorIs(t, sys.Send("bob", "nobody", MessageTypeText, "x"), ErrActorNotFound)
	assert.Len(t, sys.Stats(), 1)

	require.NoError(t, sys.Kill("alice"))
	_, ok = sys.Lookup("alice")
	assert.False(t, ok)

	_, err = sys.Spawn("carol", rec, ActorOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Shutdown(ctx))

	_, err = sys.Spawn("dave", rec, ActorOptions{})
	assert.ErrorIs(t, err, ErrSystemShutdown)
	assert.Empty(t, sys.Stats())
}
