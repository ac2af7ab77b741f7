// Package protocol defines the JSON messages exchanged with battle clients.
// Every frame is an envelope {"type": ..., "data": {...}}.
package protocol

import (
	"encoding/json"

	"github.com/nexuscards/battle/internal/engine"
)

// Inbound message types.
const (
	TypeQueueJoin     = "queue.join"
	TypeQueueLeave    = "queue.leave"
	TypeMatchAction   = "match.action"
	TypeResyncRequest = "match.resync_request"
	TypeMatchConcede  = "match.concede"
)

// Outbound message types.
const (
	TypeQueueAck      = "queue.ack"
	TypeMatchFound    = "match.found"
	TypeMatchStart    = "match.start"
	TypeMatchPatch    = "match.patch"
	TypeMatchSnapshot = "match.snapshot"
	TypeTimerTick     = "timer.tick"
	TypeMatchEnd      = "match.end"
	TypeError         = "error"
)

// Error codes beyond the engine's rejection codes.
const (
	CodeMatchNotFound = "MATCH_NOT_FOUND"
	CodeQueueTimeout  = "QUEUE_TIMEOUT"
	CodeAlreadyQueued = "ALREADY_QUEUED"
	CodeBadMessage    = "BAD_MESSAGE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternal      = "INTERNAL"
)

// Envelope is an inbound frame with its data left raw until routed.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message is an outbound frame. MatchID and Sequence are used by the
// gateway for ordering and are not written to the wire.
type Message struct {
	Type     string
	MatchID  string
	Sequence int64
	Data     any
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{m.Type, m.Data})
}

type QueueJoin struct {
	Elo int `json:"elo"`
}

type MatchAction struct {
	MatchID string           `json:"match_id"`
	Action  engine.RawAction `json:"action"`
}

// ResyncRequest asks for the current state of a match. SinceSequence is
// advisory: the reply is always a full snapshot.
type ResyncRequest struct {
	MatchID       string `json:"match_id"`
	SinceSequence int64  `json:"since_sequence"`
}

type MatchConcede struct {
	MatchID string `json:"match_id"`
}

type QueueAck struct {
	Position int  `json:"position"`
	Elo      int  `json:"elo"`
	Left     bool `json:"left,omitempty"`
}

type OpponentSummary struct {
	PlayerID string `json:"player_id"`
	Elo      int    `json:"elo"`
}

type MatchFound struct {
	MatchID  string          `json:"match_id"`
	Opponent OpponentSummary `json:"opponent"`
}

type MatchStart struct {
	MatchID      string           `json:"match_id"`
	Seed         int64            `json:"seed"`
	InitialState engine.MatchView `json:"initial_state"`
}

type MatchPatch struct {
	MatchID        string         `json:"match_id"`
	SequenceNumber int64          `json:"sequence_number"`
	Diff           map[string]any `json:"diff"`
	Events         []engine.Event `json:"events"`
}

type MatchSnapshot struct {
	MatchID        string           `json:"match_id"`
	SequenceNumber int64            `json:"sequence_number"`
	FullState      engine.MatchView `json:"full_state"`
}

type TimerTick struct {
	MatchID     string       `json:"match_id"`
	Phase       engine.Phase `json:"phase"`
	RemainingMs int64        `json:"remaining_ms"`
}

type MatchResult struct {
	MatchID    string           `json:"match_id"`
	WinnerID   string           `json:"winner_id"`
	Reason     engine.EndReason `json:"reason"`
	DurationMs int64            `json:"duration_ms"`
	EloDelta   int              `json:"elo_delta"`
}

type MatchEnd struct {
	MatchID string      `json:"match_id"`
	Result  MatchResult `json:"result"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, message string) Message {
	return Message{Type: TypeError, Data: Error{Code: code, Message: message}}
}
