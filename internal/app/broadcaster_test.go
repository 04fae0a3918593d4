package app

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
)

type rosterFrame struct {
	Type  string             `json:"type"`
	Users []core.PresenceDTO `json:"users"`
}

func decodeRoster(t *testing.T, f core.Frame) rosterFrame {
	t.Helper()
	var r rosterFrame
	require.NoError(t, json.Unmarshal(f, &r))
	return r
}

func TestBroadcastRosterReachesEveryone(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	reg.Register("a", a, nil)
	reg.Register("b", b, nil)

	res := NewBroadcaster(reg, nil, nil).BroadcastRoster()
	assert.Equal(t, 2, res.SentTo)
	assert.Empty(t, res.Dropped)

	for _, c := range []*fakeConn{a, b} {
		r := decodeRoster(t, c.last())
		assert.Equal(t, "online_users", r.Type)
		require.Len(t, r.Users, 2)
		assert.Equal(t, domain.Identity("a"), r.Users[0].ID)
		assert.Equal(t, domain.Identity("b"), r.Users[1].ID)
	}
}

func TestBroadcastRosterDropsDeadPeerAndContinues(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, dead, c := &fakeConn{}, &fakeConn{fail: errDead}, &fakeConn{}
	reg.Register("a", a, nil)
	reg.Register("c", c, nil)
	evicted := false
	reg.Register("dead", dead, func() { evicted = true })

	res := NewBroadcaster(reg, nil, nil).BroadcastRoster()
	assert.Equal(t, []domain.Identity{"dead"}, res.Dropped)
	assert.True(t, evicted)
	assert.Equal(t, 2, res.SentTo)

	_, ok := reg.Lookup("dead")
	assert.False(t, ok)
	assert.False(t, dead.closed)

	for _, conn := range []*fakeConn{a, c} {
		assert.Equal(t, 2, conn.count())
		r := decodeRoster(t, conn.last())
		require.Len(t, r.Users, 2)
		for _, u := range r.Users {
			assert.NotEqual(t, domain.Identity("dead"), u.ID)
		}
	}
}

func TestBroadcastRosterClosePolicyClosesHandle(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	slow := &fakeConn{fail: errDead}
	reg.Register("slow", slow, nil)
	reg.Register("ok", &fakeConn{}, nil)

	NewBroadcaster(reg, ClosePolicy{}, nil).BroadcastRoster()
	assert.True(t, slow.closed)
	assert.Equal(t, 1, reg.Len())
}

func TestBroadcastRosterSpareReRegisteredIdentity(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	oldCancelled, newCancelled := false, false
	newConn := &fakeConn{}
	oldConn := &fakeConn{fail: errDead}
	oldConn.onSend = func() {
		reg.Register("u1", newConn, func() { newCancelled = true })
	}
	reg.Register("u1", oldConn, func() { oldCancelled = true })

	NewBroadcaster(reg, nil, nil).BroadcastRoster()
	assert.False(t, newCancelled)
	assert.False(t, oldCancelled)

	got, ok := reg.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, newConn, got)
}

func TestCurrentRosterUsesWireShape(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("a", &fakeConn{}, nil)
	reg.UpdatePresence("a", domain.PresenceUpdate{Username: ptr("Alice")})

	roster := NewBroadcaster(reg, nil, nil).CurrentRoster()
	require.Len(t, roster, 1)
	assert.Equal(t, domain.Identity("a"), roster[0].ID)
	assert.Equal(t, "Alice", roster[0].Username)
	assert.NotEmpty(t, roster[0].ConnectedAt)
}

func TestBroadcastRosterEmptyRegistry(t *testing.T) {
	t.Parallel()

	res := NewBroadcaster(NewRegistry(), nil, nil).BroadcastRoster()
	assert.Zero(t, res.SentTo)
	assert.Empty(t, res.Dropped)
}

func TestBroadcastAllDeadTerminates(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("x", &fakeConn{fail: errDead}, nil)
	reg.Register("y", &fakeConn{fail: errDead}, nil)

	res := NewBroadcaster(reg, nil, nil).BroadcastRoster()
	assert.ElementsMatch(t, []domain.Identity{"x", "y"}, res.Dropped)
	assert.Equal(t, 0, reg.Len())
}
