package app

import (
	"github.com/dkeye/Share/internal/app/signaling"
	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
	"github.com/dkeye/Share/internal/metrics"
	"github.com/rs/zerolog/log"
)

// BroadcastResult reports delivery stats of one roster broadcast.
type BroadcastResult struct {
	SentTo  int
	Dropped []domain.Identity
}

// Broadcaster pushes the full roster to every registered connection.
// Delivery is fire-and-forget: a failed send is never retried, the peer is
// treated as dead and evicted as the Policy says.
type Broadcaster struct {
	Registry *Registry
	Policy   Policy
	Metrics  *metrics.Metrics
}

func NewBroadcaster(reg *Registry, policy Policy, m *metrics.Metrics) *Broadcaster {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Broadcaster{Registry: reg, Policy: policy, Metrics: m}
}

// BroadcastRoster sends the current roster to everyone. Peers that fail are
// removed and the survivors get one more pass with the pruned roster.
func (b *Broadcaster) BroadcastRoster() BroadcastResult {
	var total BroadcastResult
	for {
		res := b.pass()
		total.SentTo = res.SentTo
		total.Dropped = append(total.Dropped, res.Dropped...)
		if len(res.Dropped) == 0 || res.SentTo == 0 {
			return total
		}
	}
}

func (b *Broadcaster) pass() BroadcastResult {
	entries := b.Registry.entries()
	snap := make([]domain.Presence, 0, len(entries))
	for _, e := range entries {
		snap = append(snap, e.Presence)
	}
	frame, err := signaling.EncodeRoster(snap)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcaster").Msg("encode roster")
		return BroadcastResult{}
	}
	b.Metrics.RosterBroadcast()

	res := BroadcastResult{}
	for _, e := range entries {
		id := e.Presence.ID
		if err := e.Conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.broadcaster").Str("identity", string(id)).Msg("roster send failed, dropping peer")
			action := b.Policy.OnSendFailure(id, err)
			if b.Registry.EvictConn(id, e.Conn) {
				res.Dropped = append(res.Dropped, id)
				if action == ClosePeer {
					e.Conn.Close()
				}
			}
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.broadcaster").Int("users", len(snap)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("roster broadcast")
	return res
}

// CurrentRoster is the polling form of the roster for non-WebSocket callers,
// in the same shape as the users of an online_users frame.
func (b *Broadcaster) CurrentRoster() []core.PresenceDTO {
	return core.RosterDTO(b.Registry.Snapshot())
}
