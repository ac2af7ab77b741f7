package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const version = "1.0.0"

// Stats reports live counters for the health endpoint.
type Stats interface {
	Connected() int
	Active() int
	QueueDepth() int
}

// HealthCheck returns server health status
func HealthCheck(stats Stats) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"service":        "nexus-battle",
			"version":        version,
			"uptime":         time.Since(startTime).String(),
			"sessions":       stats.Connected(),
			"active_matches": stats.Active(),
			"queue_depth":    stats.QueueDepth(),
		})
	}
}
