package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Presence domain.Presence
	Conn     core.SignalConnection
	Cancel   context.CancelFunc
	seq      uint64
}

// Registry maps a live identity to its connection handle and presence record.
// It never closes the handles it holds; the coordinator that registered a
// handle owns it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Identity]*sessionEntry
	seq      uint64
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.Identity]*sessionEntry),
		now:      time.Now,
	}
}

// Register inserts or replaces the entry for id. When an entry is replaced
// the superseded owner's cancel func is returned, not called.
func (r *Registry) Register(id domain.Identity, conn core.SignalConnection, cancel context.CancelFunc) context.CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	var superseded context.CancelFunc
	if old, ok := r.sessions[id]; ok {
		superseded = old.Cancel
		log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("replaced registration")
	}
	r.seq++
	r.sessions[id] = &sessionEntry{
		Presence: domain.NewPresence(id, r.now()),
		Conn:     conn,
		Cancel:   cancel,
		seq:      r.seq,
	}
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("registered")
	return superseded
}

// Unregister removes id if present.
func (r *Registry) Unregister(id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("unregistered")
}

// UnregisterConn removes id only while it is still mapped to conn, so the
// teardown of a superseded connection leaves the newer registration alone.
func (r *Registry) UnregisterConn(id domain.Identity, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("unregistered")
	return true
}

func (r *Registry) Lookup(id domain.Identity) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

// UpdatePresence applies u to the record of id. It reports false when id is
// not registered.
func (r *Registry) UpdatePresence(id domain.Identity, u domain.PresenceUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.Presence.Apply(u)
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Str("username", e.Presence.Username).Msg("updated presence")
	return true
}

// UpdatePresenceConn is UpdatePresence restricted to the owner of the
// current registration.
func (r *Registry) UpdatePresenceConn(id domain.Identity, conn core.SignalConnection, u domain.PresenceUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.Conn != conn {
		return false
	}
	e.Presence.Apply(u)
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Str("username", e.Presence.Username).Msg("updated presence")
	return true
}

// EvictConn removes id while it is still mapped to conn and cancels the
// coordinator that owns it. A newer registration of id is left alone.
func (r *Registry) EvictConn(id domain.Identity, conn core.SignalConnection) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok || e.Conn != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("evicted session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

type regSnap struct {
	Presence domain.Presence
	Conn     core.SignalConnection
	seq      uint64
}

func (r *Registry) entries() []regSnap {
	r.mu.RLock()
	out := make([]regSnap, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, regSnap{Presence: e.Presence, Conn: e.Conn, seq: e.seq})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Snapshot is a point-in-time copy of the roster in registration order.
func (r *Registry) Snapshot() []domain.Presence {
	entries := r.entries()
	out := make([]domain.Presence, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Presence)
	}
	return out
}
