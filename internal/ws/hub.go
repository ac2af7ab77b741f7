package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexuscards/battle/internal/config"
	"github.com/nexuscards/battle/internal/match"
	"github.com/nexuscards/battle/internal/protocol"
	"github.com/nexuscards/battle/internal/queue"
	"github.com/rs/zerolog/log"
)

// Queue is the part of the queue manager the gateway drives.
type Queue interface {
	Enqueue(playerID string, elo int) (queue.Entry, error)
	Cancel(playerID string) bool
	Position(playerID string) (int, error)
}

// Matches looks up live match managers.
type Matches interface {
	Get(matchID string) (*match.Manager, bool)
	ForPlayer(playerID string) (*match.Manager, bool)
}

// EloSource returns a player's authoritative rating.
type EloSource interface {
	GetPlayerElo(ctx context.Context, playerID string) (int, error)
}

type Options struct {
	IdleTimeout       time.Duration
	MessagesPerSecond float64
	Burst             int
	SendBuffer        int
	RequestTimeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		IdleTimeout:       60 * time.Second,
		MessagesPerSecond: 10,
		Burst:             20,
		SendBuffer:        256,
		RequestTimeout:    5 * time.Second,
	}
}

func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	o.IdleTimeout = cfg.WSIdleTimeout
	o.MessagesPerSecond = cfg.WSMessagesPerSecond
	o.Burst = cfg.WSMessageBurst
	o.SendBuffer = cfg.WSSendBufferCapacity
	return o
}

func (o Options) pingPeriod() time.Duration {
	return o.IdleTimeout * 9 / 10
}

// Hub tracks one session per player and routes messages between sessions,
// the queue and the match managers.
type Hub struct {
	opts Options

	queue   Queue
	matches Matches
	elo     EloSource

	mu       sync.RWMutex
	sessions map[string]*Session
	lastGen  atomic.Uint64
}

func NewHub(opts Options) *Hub {
	return &Hub{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Attach wires the hub to the components it routes to. It must be called
// before the hub serves connections. elo may be nil.
func (h *Hub) Attach(q Queue, matches Matches, elo EloSource) {
	h.queue = q
	h.matches = matches
	h.elo = elo
}

// Register makes s the player's active session, replacing any older one,
// and rebinds it to a live match if the player is in one.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	old := h.sessions[s.playerID]
	h.sessions[s.playerID] = s
	h.mu.Unlock()

	if old != nil {
		s.logger.Info().Msg("[WS] Player reconnected, replacing old connection")
		old.replace()
	}
	s.setState(StateAuthenticated)
	s.logger.Info().Str("device_id", s.deviceID).Msg("[WS] Player connected")

	if m, ok := h.matches.ForPlayer(s.playerID); ok {
		s.bind(m.ID())
		m.PlayerConnected(s.playerID, s.gen)
	}
}

// Unregister forgets s unless a newer session has already replaced it.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	current, ok := h.sessions[s.playerID]
	if !ok || current != s {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.playerID)
	h.mu.Unlock()

	if h.queue.Cancel(s.playerID) {
		s.logger.Info().Msg("[WS] Left queue on disconnect")
	}
	if m, ok := h.matches.ForPlayer(s.playerID); ok {
		m.PlayerDisconnected(s.playerID, s.gen)
	}
	s.logger.Info().Msg("[WS] Player disconnected")
}

func (h *Hub) session(playerID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[playerID]
	return s, ok
}

// Connected returns the number of live sessions.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Notify implements match.Notifier. Messages for players without a session
// are dropped; they resync when they reconnect.
func (h *Hub) Notify(playerID string, msg protocol.Message) {
	s, ok := h.session(playerID)
	if !ok {
		return
	}
	s.deliver(msg)
}

// MatchFound implements queue.Notifier.
func (h *Hub) MatchFound(player, opponent queue.Entry, matchID string) {
	h.Notify(player.PlayerID, protocol.Message{
		Type:    protocol.TypeMatchFound,
		MatchID: matchID,
		Data: protocol.MatchFound{
			MatchID:  matchID,
			Opponent: protocol.OpponentSummary{PlayerID: opponent.PlayerID, Elo: opponent.Elo},
		},
	})
}

// QueueTimeout implements queue.Notifier.
func (h *Hub) QueueTimeout(entry queue.Entry) {
	h.Notify(entry.PlayerID, protocol.NewError(protocol.CodeQueueTimeout, "no opponent found in time"))
}

// CloseAll disconnects every session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.close()
	}
	log.Info().Int("sessions", len(all)).Msg("[WS] Closed all sessions")
}
