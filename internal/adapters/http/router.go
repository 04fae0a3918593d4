package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Share/internal/adapters/signal"
	"github.com/dkeye/Share/internal/app/orch"
	"github.com/dkeye/Share/internal/app/quota"
	"github.com/dkeye/Share/internal/config"
	"github.com/dkeye/Share/internal/domain"
	"github.com/dkeye/Share/internal/metrics"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// cookie session. It is the identity of /api/ws when none is in the path.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type Server struct {
	Orch    *orch.Orchestrator
	Ledger  *quota.Ledger
	Metrics *metrics.Metrics
	Signal  *signal.SignalWSController
}

func SetupRouter(ctx context.Context, cfg *config.Config, srv *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ShareSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
	}

	r.GET("/health", srv.health)
	r.GET("/metrics", gin.WrapH(srv.Metrics.Handler()))

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		srv.Signal.HandleSignal(ctx, c, domain.Identity(c.GetString(clientTokenKey)))
	})
	api.GET("/ws/:identity", func(c *gin.Context) {
		srv.Signal.HandleSignal(ctx, c, domain.Identity(c.Param("identity")))
	})
	api.GET("/online-users", srv.onlineUsers)

	q := api.Group("/quota/:identity")
	q.GET("", srv.usage)
	q.POST("/reserve", srv.reserve)
	q.POST("/release", srv.release)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"connections": s.Orch.Registry.Len(),
	})
}

func (s *Server) onlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.Orch.Broadcaster.CurrentRoster()})
}

type sizeRequest struct {
	Size int64 `json:"size" binding:"required,gt=0"`
}

type usageResponse struct {
	ID         domain.Identity `json:"id"`
	Total      int64           `json:"total_data_shared"`
	Restricted bool            `json:"restricted"`
	Limit      int64           `json:"limit"`
	Remaining  int64           `json:"remaining"`
	LimitHuman string          `json:"limit_human,omitempty"`
	TotalHuman string          `json:"total_human"`
}

func newUsageResponse(u quota.Usage) usageResponse {
	resp := usageResponse{
		ID:         u.Account.ID,
		Total:      u.Account.Total,
		Restricted: u.Restricted(),
		TotalHuman: humanize.IBytes(uint64(u.Account.Total)),
	}
	if resp.Restricted {
		resp.Limit = u.Limit
		resp.Remaining = u.Remaining
		resp.LimitHuman = humanize.IBytes(uint64(u.Limit))
	}
	return resp
}

func (s *Server) usage(c *gin.Context) {
	id := domain.Identity(c.Param("identity"))
	u, err := s.Ledger.Usage(c.Request.Context(), id)
	if err != nil {
		s.ledgerError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, newUsageResponse(u))
}

func (s *Server) reserve(c *gin.Context) {
	id := domain.Identity(c.Param("identity"))
	var req sizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing or invalid size"})
		return
	}
	if err := s.Ledger.TryReserve(c.Request.Context(), id, req.Size); err != nil {
		s.ledgerError(c, id, err)
		return
	}
	s.usage(c)
}

func (s *Server) release(c *gin.Context) {
	id := domain.Identity(c.Param("identity"))
	var req sizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing or invalid size"})
		return
	}
	if err := s.Ledger.Release(c.Request.Context(), id, req.Size); err != nil {
		s.ledgerError(c, id, err)
		return
	}
	s.usage(c)
}

func (s *Server) ledgerError(c *gin.Context, id domain.Identity, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		c.JSON(http.StatusForbidden, gin.H{"detail": "Guest data limit exceeded"})
	case errors.Is(err, domain.ErrInvalidSize):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("identity", string(id)).Msg("ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "ledger unavailable"})
	}
}
