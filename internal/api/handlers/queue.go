package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuscards/battle/internal/queue"
)

type QueueStatusReader interface {
	Status() queue.Status
}

// GetQueueStatus reports how many players are waiting and for how long.
func GetQueueStatus(q QueueStatusReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := q.Status()
		c.JSON(http.StatusOK, gin.H{
			"depth":          st.Depth,
			"oldest_wait_ms": st.OldestWait.Milliseconds(),
		})
	}
}
