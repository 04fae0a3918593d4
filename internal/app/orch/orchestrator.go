// Package orch runs the per-connection control loop of the relay.
package orch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Share/internal/app"
	"github.com/dkeye/Share/internal/app/signaling"
	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
	"github.com/dkeye/Share/internal/metrics"
)

type Orchestrator struct {
	Registry    *app.Registry
	Broadcaster *app.Broadcaster
	Router      *signaling.Router
	Metrics     *metrics.Metrics

	// CloseSuperseded cancels the older session when an identity registers
	// a second connection.
	CloseSuperseded bool
}

func New(reg *app.Registry, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		Registry:        reg,
		Broadcaster:     app.NewBroadcaster(reg, policy, m),
		Router:          signaling.NewRouter(reg, m),
		Metrics:         m,
		CloseSuperseded: true,
	}
}

type session struct {
	id     domain.Identity
	connID string
	conn   core.Conn
	state  atomic.Int32
	logger zerolog.Logger
}

func (s *session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.logger.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("state")
}

// Serve owns conn until it closes. It registers id, reads frames one at a
// time and dispatches them, and on every way out unregisters id and
// broadcasts the new roster. Cancelling ctx closes conn. The returned error
// is whatever ended the read loop.
func (o *Orchestrator) Serve(ctx context.Context, id domain.Identity, conn core.Conn) (err error) {
	s := &session{id: id, connID: uuid.NewString(), conn: conn}
	s.logger = log.With().Str("module", "orch").Str("identity", string(id)).Str("conn", s.connID).Logger()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("session panicked")
			err = fmt.Errorf("session %s: panic: %v", s.connID, r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	o.open(s, cancel)
	defer o.close(s)

	return o.loop(s)
}

func (o *Orchestrator) open(s *session, cancel context.CancelFunc) {
	superseded := o.Registry.Register(s.id, s.conn, cancel)
	s.setState(Open)
	o.Metrics.ConnectionOpened()
	s.logger.Info().Msg("session open")
	if superseded != nil && o.CloseSuperseded {
		s.logger.Info().Msg("closing superseded session")
		superseded()
	}
	o.Broadcaster.BroadcastRoster()
}

func (o *Orchestrator) close(s *session) {
	s.setState(Closed)
	o.Registry.UnregisterConn(s.id, s.conn)
	s.conn.Close()
	o.Metrics.ConnectionClosed()
	s.logger.Info().Msg("session closed")
	o.Broadcaster.BroadcastRoster()
}

func (o *Orchestrator) loop(s *session) error {
	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			return err
		}
		o.dispatch(s, f)
	}
}

func (o *Orchestrator) dispatch(s *session, f core.Frame) {
	kind, err := signaling.DecodeKind(f)
	if err != nil {
		o.Metrics.SignalDropped("malformed")
		s.logger.Debug().Err(err).Msg("bad json")
		return
	}

	switch {
	case kind == signaling.KindUpdateInfo:
		o.updateInfo(s, f)
	case kind.IsSignal():
		o.Router.Route(s.id, f)
	default:
		o.Metrics.SignalDropped("unknown_type")
		s.logger.Debug().Str("type", string(kind)).Msg("unknown message")
	}
}

func (o *Orchestrator) updateInfo(s *session, f core.Frame) {
	u, err := signaling.DecodeUpdateInfo(f)
	if err != nil {
		o.Metrics.SignalDropped("malformed")
		s.logger.Debug().Err(err).Msg("bad update_info payload")
		return
	}
	if o.Registry.UpdatePresenceConn(s.id, s.conn, u) {
		o.Broadcaster.BroadcastRoster()
	}
}
