// Package signal is the WebSocket transport of the relay.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Share/internal/app/orch"
	"github.com/dkeye/Share/internal/core"
	"github.com/dkeye/Share/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  5 * time.Second,
		SendBuffer: 64,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *ConnectLimiter
	Opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *ConnectLimiter, opts Options) *SignalWSController {
	return &SignalWSController{Orch: o, Limiter: limiter, Opts: opts}
}

// WsSignalConn is a core.Conn over one websocket. Outbound frames go
// through a bounded queue drained by writePump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) ReadFrame() (core.Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and hands the connection to the
// orchestrator. ctx bounds the session; cancelling it closes the socket.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, id domain.Identity) {
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing identity"})
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("identity", string(id)).Msg("connect rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many connection attempts"})
		return
	}
	log.Info().Str("module", "signal").Str("identity", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ctl.configure(ws)

	conn := NewWsSignalConn(ws, ctl.Opts.SendBuffer)
	go ctl.writePump(conn)
	go ctl.serve(ctx, id, conn)
}

func (ctl *SignalWSController) configure(ws *websocket.Conn) {
	if ctl.Opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Opts.ReadLimit)
	}
	if ctl.Opts.PongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
		})
	}
}
