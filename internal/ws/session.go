package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nexuscards/battle/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// State is where a connection is in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateInMatch
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateInMatch:
		return "IN_MATCH"
	}
	return "DISCONNECTED"
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Session is one authenticated WebSocket connection.
type Session struct {
	hub      *Hub
	conn     *websocket.Conn
	playerID string
	deviceID string
	gen      uint64
	send     chan []byte
	limiter  *rate.Limiter
	logger   zerolog.Logger

	mu      sync.Mutex
	state   State
	matchID string
	lastSeq map[string]int64

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(hub *Hub, conn *websocket.Conn, playerID, deviceID string) *Session {
	opts := hub.opts
	return &Session{
		hub:      hub,
		conn:     conn,
		playerID: playerID,
		deviceID: deviceID,
		gen:      hub.lastGen.Add(1),
		send:     make(chan []byte, opts.SendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.Burst),
		logger:   log.With().Str("player_id", playerID).Logger(),
		state:    StateConnecting,
		lastSeq:  make(map[string]int64),
		done:     make(chan struct{}),
	}
}

func (s *Session) PlayerID() string {
	return s.playerID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MatchID returns the match the session is bound to, if any.
func (s *Session) MatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		s.state = state
	}
}

// bind attaches the session to matchID without sending anything.
func (s *Session) bind(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindLocked(matchID)
}

func (s *Session) bindLocked(matchID string) {
	if s.state == StateDisconnected {
		return
	}
	if s.matchID != matchID {
		s.matchID = matchID
		s.lastSeq[matchID] = -1
	}
	s.state = StateInMatch
}

// deliver queues msg for the client. Patches at or below the last sequence
// already delivered for their match are dropped so a client never sees a
// sequence number twice. A client that cannot keep up is disconnected.
func (s *Session) deliver(msg protocol.Message) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	switch msg.Type {
	case protocol.TypeMatchFound:
		s.bindLocked(msg.MatchID)
	case protocol.TypeMatchStart, protocol.TypeMatchSnapshot:
		s.bindLocked(msg.MatchID)
		s.lastSeq[msg.MatchID] = msg.Sequence
	case protocol.TypeMatchPatch:
		last, seen := s.lastSeq[msg.MatchID]
		if seen && msg.Sequence <= last {
			s.mu.Unlock()
			s.logger.Debug().Str("match_id", msg.MatchID).Int64("seq", msg.Sequence).Int64("last_seq", last).Msg("[WS] Dropping already delivered patch")
			return
		}
		s.lastSeq[msg.MatchID] = msg.Sequence
	case protocol.TypeMatchEnd:
		if s.matchID == msg.MatchID {
			s.matchID = ""
			s.state = StateAuthenticated
		}
		delete(s.lastSeq, msg.MatchID)
	}
	s.mu.Unlock()

	data, err := msg.Encode()
	if err != nil {
		s.logger.Error().Err(err).Str("type", msg.Type).Msg("[WS] Failed to encode message")
		return
	}

	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Warn().Str("type", msg.Type).Msg("[WS] Send buffer full, closing connection")
		s.close()
	}
}

func (s *Session) sendError(code, message string) {
	s.deliver(protocol.NewError(code, message))
}

// close ends the session. It is safe to call more than once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// replace closes an older session for a player who connected again.
func (s *Session) replace() {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.logger.Debug().Err(err).Msg("[WS] Failed to send close to replaced connection")
	}
	s.close()
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug().Err(err).Msg("[WS] Write error")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug().Err(err).Msg("[WS] Ping error")
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (s *Session) readPump() {
	defer func() {
		s.close()
		s.hub.Unregister(s)
	}()

	idle := s.hub.opts.IdleTimeout
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(idle))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(idle))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("[WS] Unexpected close")
			} else {
				s.logger.Debug().Err(err).Msg("[WS] Read ended")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(idle))

		if !s.limiter.Allow() {
			s.sendError(protocol.CodeRateLimited, "too many messages")
			continue
		}
		s.hub.handleMessage(s, message)
	}
}
