package match

import (
	"time"

	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/protocol"
)

// Result is the final record of a match.
type Result struct {
	MatchID       string           `json:"match_id"`
	Players       [2]string        `json:"players"`
	WinnerID      string           `json:"winner_id"`
	Reason        engine.EndReason `json:"reason"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       time.Time        `json:"ended_at"`
	Duration      time.Duration    `json:"duration"`
	FinalSequence int64            `json:"final_sequence"`
	Incident      bool             `json:"incident"`
	EloBefore     [2]int           `json:"elo_before"`
	EloDelta      [2]int           `json:"elo_delta"`
}

// Score returns seat 0's score: 1 for a win, 0 for a loss, 0.5 for a draw.
func (r Result) Score() float64 {
	switch r.WinnerID {
	case "":
		return 0.5
	case r.Players[0]:
		return 1
	}
	return 0
}

// Rated reports whether the result should move ratings.
func (r Result) Rated() bool {
	return !r.Incident
}

func (r Result) payloadFor(seat int) protocol.MatchResult {
	return protocol.MatchResult{
		MatchID:    r.MatchID,
		WinnerID:   r.WinnerID,
		Reason:     r.Reason,
		DurationMs: r.Duration.Milliseconds(),
		EloDelta:   r.EloDelta[seat],
	}
}
