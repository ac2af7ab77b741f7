package api

import (
	"github.com/gin-gonic/gin"
	"github.com/nexuscards/battle/internal/api/handlers"
	"github.com/nexuscards/battle/internal/config"
	"github.com/nexuscards/battle/internal/match"
	"github.com/nexuscards/battle/internal/middleware"
	"github.com/nexuscards/battle/internal/queue"
	"github.com/nexuscards/battle/internal/ws"
	"github.com/rs/zerolog/log"
)

// Deps are the running components the routes serve.
type Deps struct {
	Hub       *ws.Hub
	Registry  *match.Registry
	Queue     *queue.Manager
	Snapshots handlers.SnapshotLoader
	History   handlers.HistoryReader
	Auth      ws.Authenticator
}

type stats struct {
	hub      *ws.Hub
	registry *match.Registry
	queue    *queue.Manager
}

func (s stats) Connected() int  { return s.hub.Connected() }
func (s stats) Active() int     { return s.registry.Active() }
func (s stats) QueueDepth() int { return s.queue.Status().Depth }

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, deps Deps, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Info().Msg("[DEV MODE] No-cache headers enabled for all routes")
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(stats{hub: deps.Hub, registry: deps.Registry, queue: deps.Queue}))

		// origins are checked by the middleware, so the upgrader accepts any
		v1.GET("/ws", middleware.WebSocketOriginCheck(cfg), ws.HandleWebSocket(deps.Hub, deps.Auth, ws.Upgrader("*")))

		v1.GET("/queue/status", handlers.GetQueueStatus(deps.Queue))
		v1.GET("/matches/:id", handlers.GetMatch(deps.Registry, deps.Snapshots))
		if deps.History != nil {
			v1.GET("/players/:id/matches", handlers.GetPlayerMatches(deps.History))
		}
	}
}
