package engine

import "time"

type Phase string

const (
	PhaseStart  Phase = "START"
	PhaseMain   Phase = "MAIN"
	PhaseAttack Phase = "ATTACK"
	PhaseEnd    Phase = "END"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type EndReason string

const (
	ReasonHealthZero EndReason = "health_zero"
	ReasonConcede    EndReason = "concede"
	ReasonTimeout    EndReason = "timeout"
	ReasonDraw       EndReason = "draw"
)

// NoWinner marks a drawn or still running match.
const NoWinner = -1

type Color string

// PlayerState is one side of a match. Board holds the equipment attached to
// the current hero; it is discarded whenever the hero is replaced.
type PlayerState struct {
	PlayerID    string        `json:"player_id"`
	Health      int           `json:"health"`
	Energy      int           `json:"energy"`
	Banked      int           `json:"banked"`
	BankUsed    bool          `json:"bank_used"`
	Shield      int           `json:"shield"`
	Mana        map[Color]int `json:"mana"`
	Hero        *string       `json:"hero"`
	Board       []string      `json:"board"`
	Hand        []string      `json:"hand"`
	Deck        []string      `json:"deck"`
	Discard     []string      `json:"discard"`
	PendingSlow []string      `json:"pending_slow"`
}

// AttackWindow is open while the defender may react to the active player's attack.
type AttackWindow struct {
	Attacker int `json:"attacker"`
	Damage   int `json:"damage"`
}

type MatchState struct {
	MatchID       string         `json:"match_id"`
	Seed          int64          `json:"seed"`
	TurnNumber    int            `json:"turn_number"`
	Phase         Phase          `json:"phase"`
	CurrentPlayer int            `json:"current_player_index"`
	Sequence      int64          `json:"sequence_number"`
	PhaseDeadline time.Time      `json:"phase_deadline"`
	Players       [2]PlayerState `json:"players"`
	Attack        *AttackWindow  `json:"attack,omitempty"`
	Status        Status         `json:"status"`
	Winner        int            `json:"winner"`
	Reason        EndReason      `json:"reason,omitempty"`
}

// Clone returns a deep copy that shares no maps or slices with s.
func (s MatchState) Clone() MatchState {
	out := s
	for i := range s.Players {
		out.Players[i] = s.Players[i].clone()
	}
	if s.Attack != nil {
		a := *s.Attack
		out.Attack = &a
	}
	return out
}

func (p PlayerState) clone() PlayerState {
	out := p
	out.Mana = make(map[Color]int, len(p.Mana))
	for c, n := range p.Mana {
		out.Mana[c] = n
	}
	if p.Hero != nil {
		h := *p.Hero
		out.Hero = &h
	}
	out.Board = cloneRefs(p.Board)
	out.Hand = cloneRefs(p.Hand)
	out.Deck = cloneRefs(p.Deck)
	out.Discard = cloneRefs(p.Discard)
	out.PendingSlow = cloneRefs(p.PendingSlow)
	return out
}

func cloneRefs(refs []string) []string {
	out := make([]string, len(refs))
	copy(out, refs)
	return out
}

// IndexOf returns the seat of playerID, or -1 if they are not in the match.
func (s MatchState) IndexOf(playerID string) int {
	for i := range s.Players {
		if s.Players[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (s MatchState) Finished() bool {
	return s.Status == StatusFinished
}

// WinnerID is empty for draws and running matches.
func (s MatchState) WinnerID() string {
	if s.Winner < 0 || s.Winner > 1 {
		return ""
	}
	return s.Players[s.Winner].PlayerID
}

func opponent(i int) int {
	return 1 - i
}

type EventKind string

const (
	EventPhaseChanged  EventKind = "phase_changed"
	EventHeroSummoned  EventKind = "hero_summoned"
	EventCardPlayed    EventKind = "card_played"
	EventEquipped      EventKind = "equipped"
	EventSlowQueued    EventKind = "slow_queued"
	EventDamageDealt   EventKind = "damage_dealt"
	EventHealed        EventKind = "healed"
	EventEnergyGained  EventKind = "energy_gained"
	EventManaGained    EventKind = "mana_gained"
	EventCardDrawn     EventKind = "card_drawn"
	EventShieldRaised  EventKind = "shield_raised"
	EventEnergyBanked  EventKind = "energy_banked"
	EventAttackOpened  EventKind = "attack_opened"
	EventAttackClosed  EventKind = "attack_closed"
	EventTurnStarted   EventKind = "turn_started"
	EventMatchEnded    EventKind = "match_ended"
	EventForcedAction  EventKind = "forced_action"
	EventCardDiscarded EventKind = "card_discarded"
)

// Event describes one observable consequence of an action. Player is the
// seat the event concerns.
type Event struct {
	Kind    EventKind `json:"kind"`
	Player  int       `json:"player"`
	CardRef string    `json:"card_ref,omitempty"`
	Amount  int       `json:"amount,omitempty"`
	Color   Color     `json:"color,omitempty"`
	Phase   Phase     `json:"phase,omitempty"`
	Reason  EndReason `json:"reason,omitempty"`
}

// Rules are the tunable constants of a match.
type Rules struct {
	StartingHealth int
	OpeningHand    int
	MaxHandSize    int
	ArenaBonus     int
	BankCap        int
	// TurnCap ends the match as a draw once exceeded; zero disables it.
	TurnCap int
}

func DefaultRules() Rules {
	return Rules{
		StartingHealth: 30,
		OpeningHand:    5,
		MaxHandSize:    10,
		ArenaBonus:     1,
		BankCap:        3,
	}
}
