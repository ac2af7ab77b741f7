package models

import (
	"database/sql"
	"time"
)

// MatchHistory is one finished match as stored in match_history
type MatchHistory struct {
	ID            int64          `db:"id" json:"id"`
	MatchID       string         `db:"match_id" json:"match_id"`
	Player1ID     string         `db:"player1_id" json:"player1_id"`
	Player2ID     string         `db:"player2_id" json:"player2_id"`
	WinnerID      sql.NullString `db:"winner_id" json:"winner_id,omitempty"`
	Reason        string         `db:"reason" json:"reason"`
	DurationMs    int64          `db:"duration_ms" json:"duration_ms"`
	FinalSequence int64          `db:"final_sequence" json:"final_sequence"`
	Incident      bool           `db:"incident" json:"incident"`
	Player1Delta  int            `db:"player1_elo_delta" json:"player1_elo_delta"`
	Player2Delta  int            `db:"player2_elo_delta" json:"player2_elo_delta"`
	StartedAt     time.Time      `db:"started_at" json:"started_at"`
	EndedAt       time.Time      `db:"ended_at" json:"ended_at"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// Device is a registered battle console allowed to connect on behalf of players
type Device struct {
	DeviceID   string       `db:"device_id" json:"device_id"`
	SecretHash string       `db:"secret_hash" json:"-"`
	Label      string       `db:"label" json:"label"`
	IsActive   bool         `db:"is_active" json:"is_active"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	LastSeenAt sql.NullTime `db:"last_seen_at" json:"last_seen_at,omitempty"`
}
