package match

import (
	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/protocol"
)

// PhaseToken identifies one armed phase timer. A firing timer whose token
// no longer matches the match's current token is ignored.
type PhaseToken struct {
	Turn     int
	Phase    engine.Phase
	Sequence int64
	Epoch    int
}

// syncPhaseTimer arms a timer for the current phase when the turn or phase
// has changed since the last arm, or unconditionally when force is set.
// It reports whether a new timer was armed.
func (m *Manager) syncPhaseTimer(force bool) bool {
	if m.state.Finished() || m.suspended {
		m.stopPhaseTimer()
		return false
	}
	if !force && m.armed && m.token.Turn == m.state.TurnNumber && m.token.Phase == m.state.Phase {
		return false
	}
	d, ok := m.settings.PhaseDurations[m.state.Phase]
	if !ok || d <= 0 {
		m.stopPhaseTimer()
		return false
	}

	m.stopPhaseTimer()
	m.epoch++
	tok := PhaseToken{Turn: m.state.TurnNumber, Phase: m.state.Phase, Sequence: m.state.Sequence, Epoch: m.epoch}
	m.token = tok
	m.armed = true
	m.state.PhaseDeadline = m.clock.Now().Add(d)
	m.phaseTimer = m.clock.AfterFunc(d, func() { m.PhaseTimerExpired(tok) })
	m.scheduleTick(tok)
	return true
}

func (m *Manager) stopPhaseTimer() {
	if m.phaseTimer != nil {
		m.phaseTimer.Stop()
		m.phaseTimer = nil
	}
	if m.tickTimer != nil {
		m.tickTimer.Stop()
		m.tickTimer = nil
	}
	m.armed = false
}

// PhaseTimerExpired is called from the timer goroutine; the work itself
// runs on the match loop.
func (m *Manager) PhaseTimerExpired(tok PhaseToken) {
	m.post(func() { m.handlePhaseTimeout(tok) })
}

func (m *Manager) handlePhaseTimeout(tok PhaseToken) {
	if !m.armed || tok != m.token || m.suspended || m.state.Finished() {
		return
	}
	m.armed = false
	m.phaseTimer = nil

	action, ok := forcedAction(m.state)
	if !ok {
		return
	}
	m.logger.Info().
		Str("player_id", action.PlayerID).
		Str("phase", string(m.state.Phase)).
		Str("action", string(action.Type())).
		Msg("[MATCH] Phase timer expired, forcing action")
	if err := m.apply(action, false); err != nil {
		m.logger.Error().Err(err).Msg("[MATCH] Forced action rejected")
	}
}

// forcedAction is the action taken on behalf of whoever is holding up the
// current phase.
func forcedAction(s engine.MatchState) (engine.Action, bool) {
	a := engine.Action{MatchID: s.MatchID, Forced: true, ExpectedSequence: s.Sequence}
	switch s.Phase {
	case engine.PhaseMain:
		a.PlayerID = s.Players[s.CurrentPlayer].PlayerID
		a.Payload = engine.EndPhasePayload{}
	case engine.PhaseAttack:
		a.PlayerID = s.Players[s.Actor()].PlayerID
		a.Payload = engine.PassPayload{}
	case engine.PhaseEnd:
		a.PlayerID = s.Players[s.CurrentPlayer].PlayerID
		a.Payload = engine.EndTurnPayload{}
	default:
		return a, false
	}
	return a, true
}

func (m *Manager) scheduleTick(tok PhaseToken) {
	if m.settings.TickInterval <= 0 {
		return
	}
	m.tickTimer = m.clock.AfterFunc(m.settings.TickInterval, func() {
		m.post(func() {
			if !m.armed || tok != m.token {
				return
			}
			m.emitTick()
			m.scheduleTick(tok)
		})
	})
}

// emitTick sends the remaining time of the current phase to both players.
func (m *Manager) emitTick() {
	if !m.armed {
		return
	}
	remaining := m.state.PhaseDeadline.Sub(m.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	msg := protocol.Message{
		Type:     protocol.TypeTimerTick,
		MatchID:  m.id,
		Sequence: m.state.Sequence,
		Data: protocol.TimerTick{
			MatchID:     m.id,
			Phase:       m.state.Phase,
			RemainingMs: remaining.Milliseconds(),
		},
	}
	for _, playerID := range m.setup.Players {
		m.notify(playerID, msg)
	}
}

func (m *Manager) startGrace() {
	m.graceEpoch++
	epoch := m.graceEpoch
	m.graceTimer = m.clock.AfterFunc(m.settings.DisconnectGrace, func() {
		m.post(func() { m.handleGraceExpired(epoch) })
	})
}

func (m *Manager) stopGrace() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.graceEpoch++
}

func (m *Manager) handleGraceExpired(epoch int) {
	if epoch != m.graceEpoch || m.result != nil {
		return
	}
	m.graceTimer = nil
	switch {
	case !m.connected[0] && !m.connected[1]:
		m.logger.Info().Msg("[MATCH] Both players absent past grace, ending as draw")
		m.terminate(engine.NoWinner, engine.ReasonDraw)
	case !m.connected[0]:
		m.logger.Info().Str("player_id", m.setup.Players[0]).Msg("[MATCH] Player absent past grace, forfeiting")
		m.terminate(1, engine.ReasonTimeout)
	case !m.connected[1]:
		m.logger.Info().Str("player_id", m.setup.Players[1]).Msg("[MATCH] Player absent past grace, forfeiting")
		m.terminate(0, engine.ReasonTimeout)
	}
}

