package app

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   error
	closed bool
	onSend func()
}

func (c *fakeConn) TrySend(f core.Frame) error {
	if c.onSend != nil {
		c.onSend()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) last() core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func ptr(s string) *string { return &s }

func TestRegistryRegisterLookupUnregister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := &fakeConn{}
	assert.Nil(t, r.Register("u1", c, nil))

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, c, got)

	r.Unregister("u1")
	_, ok = r.Lookup("u1")
	assert.False(t, ok)
	assert.Empty(t, r.Snapshot())

	assert.NotPanics(t, func() { r.Unregister("u1") })
}

func TestRegistryReplaceReturnsSupersededCancel(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	oldConn, newConn := &fakeConn{}, &fakeConn{}
	cancelled := false
	r.Register("u1", oldConn, func() { cancelled = true })

	superseded := r.Register("u1", newConn, nil)
	require.NotNil(t, superseded)
	assert.False(t, cancelled)
	assert.False(t, oldConn.closed)

	got, _ := r.Lookup("u1")
	assert.Same(t, newConn, got)

	assert.False(t, r.UnregisterConn("u1", oldConn))
	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, newConn, got)

	assert.True(t, r.UnregisterConn("u1", newConn))
	assert.Equal(t, 0, r.Len())
}

func TestRegistrySnapshotDefaultsAndOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return at }

	for _, id := range []domain.Identity{"c", "a", "b"} {
		r.Register(id, &fakeConn{}, nil)
	}
	r.Unregister("a")

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, domain.Identity("c"), snap[0].ID)
	assert.Equal(t, domain.Identity("b"), snap[1].ID)
	assert.Equal(t, domain.DefaultUsername, snap[0].Username)
	assert.Equal(t, domain.DefaultEmoji, snap[0].Emoji)
	assert.Equal(t, at, snap[0].ConnectedAt)
}

func TestRegistryUpdatePresence(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("u1", &fakeConn{}, nil)

	assert.True(t, r.UpdatePresence("u1", domain.PresenceUpdate{Username: ptr("Alice")}))
	assert.True(t, r.UpdatePresence("u1", domain.PresenceUpdate{Emoji: ptr("🧪")}))
	assert.False(t, r.UpdatePresence("ghost", domain.PresenceUpdate{Username: ptr("x")}))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Alice", snap[0].Username)
	assert.Equal(t, "🧪", snap[0].Emoji)
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("u1", &fakeConn{}, nil)
	snap := r.Snapshot()
	r.UpdatePresence("u1", domain.PresenceUpdate{Username: ptr("Bob")})
	assert.Equal(t, domain.DefaultUsername, snap[0].Username)
}

func TestRegistryEvictConnCallsOwnerCancel(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := &fakeConn{}
	cancelled := make(chan struct{})
	r.Register("u1", c, func() { close(cancelled) })

	assert.True(t, r.EvictConn("u1", c))
	select {
	case <-cancelled:
	default:
		t.Fatal("cancel not called")
	}
	_, ok := r.Lookup("u1")
	assert.False(t, ok)
	assert.False(t, r.EvictConn("u1", c))
	assert.False(t, r.EvictConn("ghost", c))
}

func TestRegistryEvictConnSparesNewerRegistration(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	oldConn, newConn := &fakeConn{}, &fakeConn{}
	oldCancelled, newCancelled := false, false
	r.Register("u1", oldConn, func() { oldCancelled = true })
	r.Register("u1", newConn, func() { newCancelled = true })

	assert.False(t, r.EvictConn("u1", oldConn))
	assert.False(t, oldCancelled)
	assert.False(t, newCancelled)

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, newConn, got)
}

func TestRegistryConcurrentMutation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.Identity(fmt.Sprintf("u%d", i))
			c := &fakeConn{}
			r.Register(id, c, nil)
			r.UpdatePresence(id, domain.PresenceUpdate{Username: ptr("n")})
			_ = r.Snapshot()
			if i%2 == 0 {
				r.UnregisterConn(id, c)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, r.Len())
}

var errDead = errors.New("dead")
