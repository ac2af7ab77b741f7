package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nexuscards/battle/internal/config"
	"github.com/rs/zerolog/log"
)

// CORSMiddleware allows the console UI origin to call the HTTP API.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Device-ID", "X-Device-Secret", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	switch origins := allowedOrigins(cfg); {
	case cfg.Environment == "development":
		corsConfig.AllowOriginFunc = isLocalOrigin
	case len(origins) > 0:
		corsConfig.AllowOrigins = origins
	default:
		// consoles and native clients send no Origin
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	}
	log.Info().Str("env", cfg.Environment).Strs("origins", corsConfig.AllowOrigins).Msg("[CORS] Configured")

	return cors.New(corsConfig)
}

// WebSocketOriginCheck rejects upgrade requests from origins the API does
// not serve. Requests without an Origin header (consoles, native clients)
// pass through.
func WebSocketOriginCheck(cfg *config.Config) gin.HandlerFunc {
	allowed := allowedOrigins(cfg)
	return func(c *gin.Context) {
		if !strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			c.Next()
			return
		}
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		ok := cfg.Environment == "development" && isLocalOrigin(origin)
		for _, o := range allowed {
			if origin == o {
				ok = true
				break
			}
		}
		if !ok {
			c.AbortWithStatusJSON(403, gin.H{"error": "WebSocket origin not allowed"})
			return
		}
		c.Next()
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return nil
	}
	return []string{cfg.FrontendURL}
}

func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")
}
