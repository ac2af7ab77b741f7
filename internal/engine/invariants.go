package engine

import "fmt"

// CheckInvariants reports the first structural impossibility found in s.
// A failure here means the engine or a stored snapshot is corrupt.
func (e *Engine) CheckInvariants(s MatchState) error {
	if s.CurrentPlayer != 0 && s.CurrentPlayer != 1 {
		return fmt.Errorf("current player index %d out of range", s.CurrentPlayer)
	}
	if s.Sequence < 0 {
		return fmt.Errorf("negative sequence %d", s.Sequence)
	}

	switch s.Status {
	case StatusActive:
		switch s.Phase {
		case PhaseMain, PhaseEnd:
			if s.Attack != nil {
				return fmt.Errorf("attack window open during %s", s.Phase)
			}
		case PhaseAttack:
			if s.Attack == nil {
				return fmt.Errorf("attack phase without an attack window")
			}
			if s.Attack.Attacker != s.CurrentPlayer {
				return fmt.Errorf("attack window owned by %d during %d's turn", s.Attack.Attacker, s.CurrentPlayer)
			}
			if s.Attack.Damage < 0 {
				return fmt.Errorf("negative pending damage %d", s.Attack.Damage)
			}
		default:
			return fmt.Errorf("active match resting in phase %q", s.Phase)
		}
		if s.Winner != NoWinner {
			return fmt.Errorf("active match has winner %d", s.Winner)
		}
	case StatusFinished:
		if s.Reason == "" {
			return fmt.Errorf("finished match without an end reason")
		}
		if s.Winner < NoWinner || s.Winner > 1 {
			return fmt.Errorf("winner index %d out of range", s.Winner)
		}
	default:
		return fmt.Errorf("unknown status %q", s.Status)
	}

	for i, p := range s.Players {
		if err := e.checkPlayer(p); err != nil {
			return fmt.Errorf("player %d: %w", i, err)
		}
		if s.Status == StatusActive && p.Health <= 0 {
			return fmt.Errorf("player %d has no health but the match is active", i)
		}
	}
	return nil
}

func (e *Engine) checkPlayer(p PlayerState) error {
	switch {
	case p.Health < 0 || p.Health > e.rules.StartingHealth:
		return fmt.Errorf("health %d out of range", p.Health)
	case p.Energy < 0:
		return fmt.Errorf("negative energy %d", p.Energy)
	case p.Banked < 0 || p.Banked > e.rules.BankCap:
		return fmt.Errorf("banked energy %d out of range", p.Banked)
	case p.Shield < 0:
		return fmt.Errorf("negative shield %d", p.Shield)
	case len(p.Hand) > e.rules.MaxHandSize:
		return fmt.Errorf("hand of %d exceeds %d", len(p.Hand), e.rules.MaxHandSize)
	case len(p.Board) > 0 && p.Hero == nil:
		return fmt.Errorf("equipment without a hero")
	}
	for c, n := range p.Mana {
		if n < 0 {
			return fmt.Errorf("negative %s mana %d", c, n)
		}
	}
	return nil
}
