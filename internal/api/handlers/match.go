package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/match"
	"github.com/nexuscards/battle/internal/models"
	"github.com/nexuscards/battle/internal/protocol"
	"github.com/rs/zerolog/log"
)

type MatchLookup interface {
	Get(matchID string) (*match.Manager, bool)
}

type SnapshotLoader interface {
	Load(ctx context.Context, matchID string) (engine.MatchState, error)
}

type HistoryReader interface {
	ForPlayer(ctx context.Context, playerID string, limit int) ([]models.MatchHistory, error)
}

// GetMatch returns the public summary of a match. Live matches are read
// from their manager; matches already reaped fall back to the last stored
// snapshot.
func GetMatch(matches MatchLookup, snapshots SnapshotLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if m, ok := matches.Get(id); ok {
			c.JSON(http.StatusOK, m.Summary())
			return
		}
		if snapshots == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": protocol.CodeMatchNotFound})
			return
		}

		state, err := snapshots.Load(c.Request.Context(), id)
		if errors.Is(err, match.ErrMatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": protocol.CodeMatchNotFound})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("match_id", id).Msg("[API] Failed to load snapshot")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"match_id":             state.MatchID,
			"players":              [2]string{state.Players[0].PlayerID, state.Players[1].PlayerID},
			"status":               state.Status,
			"phase":                state.Phase,
			"turn_number":          state.TurnNumber,
			"current_player_index": state.CurrentPlayer,
			"sequence_number":      state.Sequence,
			"winner_id":            state.WinnerID(),
			"reason":               state.Reason,
		})
	}
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetPlayerMatches lists a player's most recent finished matches.
func GetPlayerMatches(history HistoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		playerID := c.Param("id")
		rows, err := history.ForPlayer(c.Request.Context(), playerID, limit)
		if err != nil {
			log.Error().Err(err).Str("player_id", playerID).Msg("[API] Failed to list match history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if rows == nil {
			rows = []models.MatchHistory{}
		}
		c.JSON(http.StatusOK, gin.H{"player_id": playerID, "matches": rows})
	}
}
