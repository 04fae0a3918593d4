package signaling

import (
	"errors"

	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
	"github.com/dkeye/Share/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Directory resolves a live identity to its send endpoint and evicts a
// target whose send failed.
type Directory interface {
	Lookup(id domain.Identity) (core.SignalConnection, bool)
	EvictConn(id domain.Identity, conn core.SignalConnection) bool
}

// Router forwards signaling messages at most once. A target that is not
// live does not get the message. A target whose send fails does not get it
// either, and its session is evicted.
type Router struct {
	dir     Directory
	metrics *metrics.Metrics
}

func NewRouter(dir Directory, m *metrics.Metrics) *Router {
	return &Router{dir: dir, metrics: m}
}

// Route reports whether the frame was handed to the target's connection.
func (r *Router) Route(sender domain.Identity, f core.Frame) bool {
	sig, err := DecodeSignal(f)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, ErrNotSignal):
			reason = "unknown_type"
		case errors.Is(err, ErrMissingTarget):
			reason = "missing_target"
		case errors.Is(err, ErrMissingPayload):
			reason = "missing_payload"
		}
		r.metrics.SignalDropped(reason)
		log.Debug().Err(err).Str("module", "signaling.router").Str("sender", string(sender)).Msg("ignored message")
		return false
	}
	return r.forward(sender, sig)
}

func (r *Router) forward(sender domain.Identity, sig Signal) bool {
	conn, ok := r.dir.Lookup(sig.Target)
	if !ok {
		r.metrics.SignalDropped("no_target")
		log.Debug().
			Str("module", "signaling.router").
			Str("sender", string(sender)).
			Str("target", string(sig.Target)).
			Str("type", string(sig.Kind)).
			Msg("target not connected, dropped")
		return false
	}
	out, err := EncodeSignal(sender, sig)
	if err != nil {
		r.metrics.SignalDropped("encode")
		log.Error().Err(err).Str("module", "signaling.router").Msg("encode signal")
		return false
	}
	if err := conn.TrySend(out); err != nil {
		r.metrics.SignalDropped("send_failed")
		log.Warn().
			Err(err).
			Str("module", "signaling.router").
			Str("sender", string(sender)).
			Str("target", string(sig.Target)).
			Msg("send to target failed, evicting target")
		r.dir.EvictConn(sig.Target, conn)
		return false
	}
	r.metrics.SignalRouted(string(sig.Kind))
	log.Debug().
		Str("module", "signaling.router").
		Str("sender", string(sender)).
		Str("target", string(sig.Target)).
		Str("type", string(sig.Kind)).
		Msg("routed")
	return true
}
