package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/models"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore keeps the latest state of each live match so it survives
// a gateway restart and can be inspected after the match is reaped.
type SnapshotStore interface {
	Save(ctx context.Context, state engine.MatchState) error
	Load(ctx context.Context, matchID string) (engine.MatchState, error)
}

// HistoryStore records finished matches.
type HistoryStore interface {
	Write(ctx context.Context, res Result) error
}

func snapshotKey(matchID string) string {
	return "match:" + matchID + ":snapshot"
}

type RedisSnapshots struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSnapshots(rdb *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{rdb: rdb, ttl: ttl}
}

func (s *RedisSnapshots) Save(ctx context.Context, state engine.MatchState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, snapshotKey(state.MatchID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", state.MatchID, err)
	}
	return nil
}

func (s *RedisSnapshots) Load(ctx context.Context, matchID string) (engine.MatchState, error) {
	var state engine.MatchState
	data, err := s.rdb.Get(ctx, snapshotKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, ErrMatchNotFound
	}
	if err != nil {
		return state, fmt.Errorf("load snapshot %s: %w", matchID, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode snapshot %s: %w", matchID, err)
	}
	return state, nil
}

type PostgresHistory struct {
	db *sqlx.DB
}

func NewPostgresHistory(db *sqlx.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func historyRow(res Result) models.MatchHistory {
	row := models.MatchHistory{
		MatchID:       res.MatchID,
		Player1ID:     res.Players[0],
		Player2ID:     res.Players[1],
		Reason:        string(res.Reason),
		DurationMs:    res.Duration.Milliseconds(),
		FinalSequence: res.FinalSequence,
		Incident:      res.Incident,
		Player1Delta:  res.EloDelta[0],
		Player2Delta:  res.EloDelta[1],
		StartedAt:     res.StartedAt,
		EndedAt:       res.EndedAt,
	}
	if res.WinnerID != "" {
		row.WinnerID = sql.NullString{String: res.WinnerID, Valid: true}
	}
	return row
}

func (h *PostgresHistory) Write(ctx context.Context, res Result) error {
	_, err := h.db.NamedExecContext(ctx, `
		INSERT INTO match_history (
			match_id, player1_id, player2_id, winner_id, reason, duration_ms,
			final_sequence, incident, player1_elo_delta, player2_elo_delta,
			started_at, ended_at, created_at
		) VALUES (
			:match_id, :player1_id, :player2_id, :winner_id, :reason, :duration_ms,
			:final_sequence, :incident, :player1_elo_delta, :player2_elo_delta,
			:started_at, :ended_at, NOW()
		)
		ON CONFLICT (match_id) DO NOTHING
	`, historyRow(res))
	if err != nil {
		return fmt.Errorf("write match history %s: %w", res.MatchID, err)
	}
	return nil
}

// ForPlayer lists the most recent matches a player took part in.
func (h *PostgresHistory) ForPlayer(ctx context.Context, playerID string, limit int) ([]models.MatchHistory, error) {
	var rows []models.MatchHistory
	err := h.db.SelectContext(ctx, &rows, `
		SELECT id, match_id, player1_id, player2_id, winner_id, reason, duration_ms,
		       final_sequence, incident, player1_elo_delta, player2_elo_delta,
		       started_at, ended_at, created_at
		FROM match_history
		WHERE player1_id = $1 OR player2_id = $1
		ORDER BY ended_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list match history for %s: %w", playerID, err)
	}
	return rows, nil
}
