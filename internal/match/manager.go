package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchStopped   = errors.New("match manager stopped")
	ErrNotParticipant = errors.New("player is not part of this match")
	ErrPlayerInMatch  = errors.New("player is already in a live match")
)

// Notifier delivers outbound messages to a player's connection, if any.
type Notifier interface {
	Notify(playerID string, msg protocol.Message)
}

// ResultReporter receives every finished match.
type ResultReporter interface {
	Report(res Result)
}

// Summary is a point-in-time description of a match, readable without
// going through the match loop.
type Summary struct {
	MatchID       string        `json:"match_id"`
	Players       [2]string     `json:"players"`
	Status        engine.Status `json:"status"`
	Phase         engine.Phase  `json:"phase"`
	TurnNumber    int           `json:"turn_number"`
	CurrentPlayer int           `json:"current_player_index"`
	Sequence      int64         `json:"sequence_number"`
	PhaseDeadline time.Time     `json:"phase_deadline"`
	Connected     [2]bool       `json:"connected"`
	Suspended     bool          `json:"suspended"`
	Result        *Result       `json:"result,omitempty"`
}

// Manager owns one match. All state changes run on its loop goroutine, in
// the order commands arrive on the inbox.
type Manager struct {
	id       string
	setup    engine.Setup
	engine   *engine.Engine
	deps     Deps
	clock    clockwork.Clock
	settings Settings
	logger   zerolog.Logger
	onEnd    func(*Manager)

	inbox    chan func()
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// loop-owned
	state      engine.MatchState
	elos       [2]int
	connected  [2]bool
	presence   [2]uint64
	startedAt  time.Time
	started    bool
	suspended  bool
	incident   bool
	result     *Result
	actions    []engine.Action
	phaseTimer clockwork.Timer
	tickTimer  clockwork.Timer
	token      PhaseToken
	armed      bool
	epoch      int
	graceTimer clockwork.Timer
	graceEpoch int

	mu      sync.RWMutex
	summary Summary
}

func newManager(setup engine.Setup, state engine.MatchState, elos [2]int, deps Deps, onEnd func(*Manager)) *Manager {
	m := &Manager{
		id:        setup.MatchID,
		setup:     setup,
		engine:    deps.Engine,
		deps:      deps,
		clock:     deps.Clock,
		settings:  deps.Settings,
		logger:    log.With().Str("match_id", setup.MatchID).Logger(),
		onEnd:     onEnd,
		inbox:     make(chan func(), 64),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		state:     state,
		elos:      elos,
		connected: [2]bool{true, true},
	}
	m.publish()
	return m
}

func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) Players() [2]string {
	return m.setup.Players
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case fn := <-m.inbox:
			fn()
		case <-m.quit:
			m.stopPhaseTimer()
			m.stopGrace()
			return
		}
	}
}

// Stop terminates the loop. Pending commands are dropped.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
	<-m.stopped
}

// Done is closed once the loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.stopped
}

// call runs fn on the loop and waits for it to finish.
func (m *Manager) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.inbox <- func() { fn(); close(done) }:
	case <-m.stopped:
		return ErrMatchStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		return ErrMatchStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the loop without waiting for it.
func (m *Manager) post(fn func()) {
	select {
	case m.inbox <- fn:
	case <-m.stopped:
	}
}

// Start announces the match to both players and arms the first phase timer.
func (m *Manager) Start() {
	m.post(m.start)
}

func (m *Manager) start() {
	if m.started {
		return
	}
	m.started = true
	m.startedAt = m.clock.Now()
	m.syncPhaseTimer(true)
	m.persist()

	for i, playerID := range m.setup.Players {
		m.notify(playerID, protocol.Message{
			Type:     protocol.TypeMatchStart,
			MatchID:  m.id,
			Sequence: m.state.Sequence,
			Data: protocol.MatchStart{
				MatchID:      m.id,
				Seed:         m.setup.Seed,
				InitialState: engine.ViewFor(m.state, i),
			},
		})
	}
	m.emitTick()
	m.publish()
	m.logger.Info().Strs("players", m.setup.Players[:]).Int64("seed", m.setup.Seed).Msg("[MATCH] Started")
}

// Submit applies a player's action. A rejection is returned to the caller
// only; nothing is broadcast.
func (m *Manager) Submit(ctx context.Context, action engine.Action) error {
	var err error
	if cerr := m.call(ctx, func() { err = m.apply(action, true) }); cerr != nil {
		return cerr
	}
	return err
}

// Concede ends the match in the opponent's favour regardless of sequence.
func (m *Manager) Concede(ctx context.Context, playerID string) error {
	return m.Submit(ctx, engine.Action{MatchID: m.id, PlayerID: playerID, Payload: engine.ConcedePayload{}, ExpectedSequence: -1})
}

// Resync sends the player a full snapshot through the notifier and returns
// the same view.
func (m *Manager) Resync(ctx context.Context, playerID string) (engine.MatchView, error) {
	var (
		view engine.MatchView
		err  error
	)
	cerr := m.call(ctx, func() {
		i := m.state.IndexOf(playerID)
		if i < 0 {
			err = ErrNotParticipant
			return
		}
		view = m.sendSnapshot(i)
	})
	if cerr != nil {
		return view, cerr
	}
	return view, err
}

// PlayerConnected and PlayerDisconnected report a player's connection
// changes. conn identifies the connection and must grow with each new
// connection of the player, so a late disconnect of a replaced connection
// is ignored.
func (m *Manager) PlayerConnected(playerID string, conn uint64) {
	m.post(func() { m.setPresence(playerID, conn, true) })
}

func (m *Manager) PlayerDisconnected(playerID string, conn uint64) {
	m.post(func() { m.setPresence(playerID, conn, false) })
}

// Summary returns the latest published summary.
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}

// ActionLog returns the actions applied so far, in order.
func (m *Manager) ActionLog(ctx context.Context) ([]engine.Action, error) {
	var out []engine.Action
	err := m.call(ctx, func() {
		out = make([]engine.Action, len(m.actions))
		copy(out, m.actions)
	})
	return out, err
}

// Setup returns what is needed to replay the match from its action log.
func (m *Manager) Setup() engine.Setup {
	return m.setup
}

// apply runs action through the engine and fans the result out.
func (m *Manager) apply(action engine.Action, checkSequence bool) error {
	if action.Type() == engine.ActionConcede {
		checkSequence = false
	}
	if checkSequence && !m.state.Finished() && action.ExpectedSequence != m.state.Sequence {
		return &engine.Rejection{
			Code:    engine.CodeStaleSequence,
			Message: fmt.Sprintf("expected sequence %d but match is at %d", action.ExpectedSequence, m.state.Sequence),
		}
	}

	prev := m.state
	next, events, err := m.engine.Apply(prev, action)
	if err != nil {
		if errors.Is(err, engine.ErrIntegrity) {
			m.integrityFailure(err)
			return &engine.Rejection{Code: protocol.CodeInternal, Message: "match ended after an internal error"}
		}
		return err
	}

	m.state = next
	m.actions = append(m.actions, action)
	rearmed := m.syncPhaseTimer(false)
	m.persist()
	m.broadcastPatch(prev, events)
	if rearmed {
		m.emitTick()
	}

	m.logger.Debug().
		Str("player_id", action.PlayerID).
		Str("action", string(action.Type())).
		Bool("forced", action.Forced).
		Int64("seq", m.state.Sequence).
		Str("phase", string(m.state.Phase)).
		Msg("[MATCH] Action applied")

	if m.state.Finished() {
		m.finish()
	}
	m.publish()
	return nil
}

func (m *Manager) broadcastPatch(prev engine.MatchState, events []engine.Event) {
	for i, playerID := range m.setup.Players {
		diff, err := engine.Diff(engine.ViewFor(prev, i), engine.ViewFor(m.state, i))
		if err != nil {
			m.logger.Error().Err(err).Str("player_id", playerID).Msg("[MATCH] Failed to build patch, sending snapshot")
			m.sendSnapshot(i)
			continue
		}
		m.notify(playerID, protocol.Message{
			Type:     protocol.TypeMatchPatch,
			MatchID:  m.id,
			Sequence: m.state.Sequence,
			Data: protocol.MatchPatch{
				MatchID:        m.id,
				SequenceNumber: m.state.Sequence,
				Diff:           diff,
				Events:         events,
			},
		})
	}
}

func (m *Manager) sendSnapshot(seat int) engine.MatchView {
	view := engine.ViewFor(m.state, seat)
	m.notify(m.setup.Players[seat], protocol.Message{
		Type:     protocol.TypeMatchSnapshot,
		MatchID:  m.id,
		Sequence: m.state.Sequence,
		Data: protocol.MatchSnapshot{
			MatchID:        m.id,
			SequenceNumber: m.state.Sequence,
			FullState:      view,
		},
	})
	return view
}

func (m *Manager) notify(playerID string, msg protocol.Message) {
	if m.deps.Notifier != nil {
		m.deps.Notifier.Notify(playerID, msg)
	}
}

// setPresence applies a connection change. The grace window starts at the
// first disconnect and is not restarted when the second player drops, so
// the later player may get less than the full window.
func (m *Manager) setPresence(playerID string, conn uint64, connected bool) {
	i := m.state.IndexOf(playerID)
	if i < 0 {
		return
	}
	if conn < m.presence[i] {
		m.logger.Debug().Str("player_id", playerID).Uint64("conn", conn).Uint64("current", m.presence[i]).Msg("[MATCH] Ignoring presence change from a replaced connection")
		return
	}
	m.presence[i] = conn
	was := m.connected[i]
	m.connected[i] = connected
	defer m.publish()

	if !connected {
		if !was || m.result != nil {
			return
		}
		m.logger.Info().Str("player_id", playerID).Msg("[MATCH] Player disconnected")
		if m.graceTimer == nil {
			m.startGrace()
		}
		if !m.connected[0] && !m.connected[1] {
			m.suspended = true
			m.stopPhaseTimer()
			m.logger.Info().Msg("[MATCH] Both players absent, match suspended")
		}
		return
	}

	resumed := false
	if m.suspended && m.result == nil {
		m.suspended = false
		resumed = m.syncPhaseTimer(true)
		m.persist()
		m.logger.Info().Str("player_id", playerID).Msg("[MATCH] Match resumed")
	}
	if !was {
		m.logger.Info().Str("player_id", playerID).Msg("[MATCH] Player reconnected")
	}
	m.sendSnapshot(i)
	if m.connected[0] && m.connected[1] {
		m.stopGrace()
	}
	if resumed {
		m.emitTick()
	}
}

func (m *Manager) integrityFailure(err error) {
	m.logger.Error().Err(err).Bool("incident", true).Int64("seq", m.state.Sequence).Msg("[MATCH] Integrity failure, ending match as a draw")
	m.incident = true
	m.terminate(engine.NoWinner, engine.ReasonDraw)
}

// terminate ends the match outside the engine's action flow.
func (m *Manager) terminate(winner int, reason engine.EndReason) {
	if m.result != nil {
		return
	}
	m.state = engine.Terminate(m.state, winner, reason)
	m.persist()
	m.finish()
	m.publish()
}

// finish records the result of a state that just became terminal.
func (m *Manager) finish() {
	if m.result != nil {
		return
	}
	m.stopPhaseTimer()
	m.stopGrace()
	m.suspended = false

	now := m.clock.Now()
	started := m.startedAt
	if started.IsZero() {
		started = now
	}
	res := Result{
		MatchID:       m.id,
		Players:       m.setup.Players,
		WinnerID:      m.state.WinnerID(),
		Reason:        m.state.Reason,
		StartedAt:     started,
		EndedAt:       now,
		Duration:      now.Sub(started),
		FinalSequence: m.state.Sequence,
		Incident:      m.incident,
		EloBefore:     m.elos,
	}
	if res.Rated() {
		res.EloDelta[0], res.EloDelta[1] = EloDeltas(m.elos[0], m.elos[1], res.Score(), m.settings.KFactor)
	}
	m.result = &res

	for i, playerID := range m.setup.Players {
		m.notify(playerID, protocol.Message{
			Type:     protocol.TypeMatchEnd,
			MatchID:  m.id,
			Sequence: m.state.Sequence,
			Data:     protocol.MatchEnd{MatchID: m.id, Result: res.payloadFor(i)},
		})
	}

	m.logger.Info().
		Str("winner_id", res.WinnerID).
		Str("reason", string(res.Reason)).
		Bool("incident", res.Incident).
		Dur("duration", res.Duration).
		Int64("seq", res.FinalSequence).
		Msg("[MATCH] ✓ Match ended")

	if m.deps.History != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := m.deps.History.Write(ctx, res); err != nil {
				m.logger.Error().Err(err).Msg("[MATCH] Failed to persist match history")
			}
		}()
	}
	if m.deps.Results != nil {
		m.deps.Results.Report(res)
	}
	if m.onEnd != nil {
		m.onEnd(m)
	}
}

func (m *Manager) persist() {
	if m.deps.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.settings.PersistTimeout)
	defer cancel()
	if err := m.deps.Snapshots.Save(ctx, m.state); err != nil {
		m.logger.Warn().Err(err).Int64("seq", m.state.Sequence).Msg("[MATCH] Snapshot not saved")
	}
}

func (m *Manager) publish() {
	s := Summary{
		MatchID:       m.id,
		Players:       m.setup.Players,
		Status:        m.state.Status,
		Phase:         m.state.Phase,
		TurnNumber:    m.state.TurnNumber,
		CurrentPlayer: m.state.CurrentPlayer,
		Sequence:      m.state.Sequence,
		PhaseDeadline: m.state.PhaseDeadline,
		Connected:     m.connected,
		Suspended:     m.suspended,
	}
	if m.result != nil {
		r := *m.result
		s.Result = &r
	}
	m.mu.Lock()
	m.summary = s
	m.mu.Unlock()
}
