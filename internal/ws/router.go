package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/match"
	"github.com/nexuscards/battle/internal/protocol"
	"github.com/nexuscards/battle/internal/queue"
)

// handleMessage routes one inbound frame. Every request ends in either a
// state change the client will see or an error frame.
func (h *Hub) handleMessage(s *Session, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		s.sendError(protocol.CodeBadMessage, "message must be {\"type\": ..., \"data\": {...}}")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
	defer cancel()

	switch env.Type {
	case protocol.TypeQueueJoin:
		h.handleQueueJoin(ctx, s, env.Data)
	case protocol.TypeQueueLeave:
		h.queue.Cancel(s.playerID)
		s.deliver(protocol.Message{Type: protocol.TypeQueueAck, Data: protocol.QueueAck{Left: true}})
	case protocol.TypeMatchAction:
		h.handleAction(ctx, s, env.Data)
	case protocol.TypeResyncRequest:
		h.handleResync(ctx, s, env.Data)
	case protocol.TypeMatchConcede:
		h.handleConcede(ctx, s, env.Data)
	default:
		s.sendError(protocol.CodeBadMessage, "unknown message type "+env.Type)
	}
}

func decodeData(data json.RawMessage, into any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, into)
}

func (h *Hub) handleQueueJoin(ctx context.Context, s *Session, data json.RawMessage) {
	var req protocol.QueueJoin
	if err := decodeData(data, &req); err != nil {
		s.sendError(protocol.CodeBadMessage, "invalid queue.join payload")
		return
	}
	if m, ok := h.matches.ForPlayer(s.playerID); ok {
		s.sendError(engine.CodeInvalidAction, "already playing match "+m.ID())
		return
	}

	elo := req.Elo
	if h.elo != nil {
		rating, err := h.elo.GetPlayerElo(ctx, s.playerID)
		if err != nil {
			s.logger.Warn().Err(err).Int("client_elo", req.Elo).Msg("[WS] Identity service unavailable, using client rating")
		} else {
			elo = rating
		}
	}

	if _, err := h.queue.Enqueue(s.playerID, elo); err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			s.sendError(protocol.CodeAlreadyQueued, "already waiting for a match")
			return
		}
		s.logger.Error().Err(err).Msg("[WS] Enqueue failed")
		s.sendError(protocol.CodeInternal, "could not join queue")
		return
	}
	pos, _ := h.queue.Position(s.playerID)
	s.deliver(protocol.Message{Type: protocol.TypeQueueAck, Data: protocol.QueueAck{Position: pos, Elo: elo}})
}

// participantMatch finds a live match the session's player is seated in.
func (h *Hub) participantMatch(s *Session, matchID string) (*match.Manager, bool) {
	m, ok := h.matches.Get(matchID)
	if !ok {
		s.sendError(protocol.CodeMatchNotFound, "match "+matchID+" not found")
		return nil, false
	}
	players := m.Players()
	if players[0] != s.playerID && players[1] != s.playerID {
		s.sendError(protocol.CodeMatchNotFound, "match "+matchID+" not found")
		return nil, false
	}
	return m, true
}

func (h *Hub) handleAction(ctx context.Context, s *Session, data json.RawMessage) {
	var req protocol.MatchAction
	if err := decodeData(data, &req); err != nil || req.MatchID == "" {
		s.sendError(protocol.CodeBadMessage, "invalid match.action payload")
		return
	}
	m, ok := h.participantMatch(s, req.MatchID)
	if !ok {
		return
	}
	action, err := engine.DecodeAction(req.MatchID, s.playerID, req.Action)
	if err != nil {
		h.replyError(s, err)
		return
	}
	h.replyError(s, m.Submit(ctx, action))
}

func (h *Hub) handleResync(ctx context.Context, s *Session, data json.RawMessage) {
	var req protocol.ResyncRequest
	if err := decodeData(data, &req); err != nil || req.MatchID == "" {
		s.sendError(protocol.CodeBadMessage, "invalid match.resync_request payload")
		return
	}
	m, ok := h.participantMatch(s, req.MatchID)
	if !ok {
		return
	}
	s.logger.Debug().Str("match_id", req.MatchID).Int64("since_seq", req.SinceSequence).Msg("[WS] Resync requested")
	s.bind(m.ID())
	_, err := m.Resync(ctx, s.playerID)
	h.replyError(s, err)
}

func (h *Hub) handleConcede(ctx context.Context, s *Session, data json.RawMessage) {
	var req protocol.MatchConcede
	if err := decodeData(data, &req); err != nil || req.MatchID == "" {
		s.sendError(protocol.CodeBadMessage, "invalid match.concede payload")
		return
	}
	m, ok := h.participantMatch(s, req.MatchID)
	if !ok {
		return
	}
	h.replyError(s, m.Concede(ctx, s.playerID))
}

// replyError turns err into an error frame; nil sends nothing.
func (h *Hub) replyError(s *Session, err error) {
	if err == nil {
		return
	}
	if rej, ok := engine.AsRejection(err); ok {
		s.sendError(rej.Code, rej.Message)
		return
	}
	switch {
	case errors.Is(err, match.ErrMatchStopped), errors.Is(err, match.ErrNotParticipant):
		s.sendError(protocol.CodeMatchNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Msg("[WS] Request failed")
		s.sendError(protocol.CodeInternal, "request failed")
	}
}
