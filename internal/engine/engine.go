package engine

import (
	"fmt"
	"slices"
)

// Engine applies actions to match states. It holds no per-match state and
// is safe for concurrent use.
type Engine struct {
	cards CardLookup
	rules Rules
}

func New(cards CardLookup, rules Rules) *Engine {
	return &Engine{cards: cards, rules: rules}
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// NewMatch builds the initial state: decks shuffled from the seed, opening
// hands drawn and the first player's START already resolved.
func (e *Engine) NewMatch(matchID string, seed int64, players [2]string, decks [2][]string) (MatchState, []Event, error) {
	if players[0] == "" || players[1] == "" || players[0] == players[1] {
		return MatchState{}, nil, fmt.Errorf("new match %s: need two distinct players", matchID)
	}
	for i := range decks {
		for _, ref := range decks[i] {
			if _, ok := e.cards.Card(ref); !ok {
				return MatchState{}, nil, reject(CodeUnknownCard, "deck of %s contains unknown card %s", players[i], ref)
			}
		}
	}

	state := MatchState{
		MatchID: matchID,
		Seed:    seed,
		Phase:   PhaseStart,
		Status:  StatusActive,
		Winner:  NoWinner,
	}

	rng := newRand(seed, 0)
	for i := range players {
		deck := cloneRefs(decks[i])
		shuffle(rng, deck)
		state.Players[i] = PlayerState{
			PlayerID:    players[i],
			Health:      e.rules.StartingHealth,
			Mana:        map[Color]int{},
			Board:       []string{},
			Hand:        []string{},
			Deck:        deck,
			Discard:     []string{},
			PendingSlow: []string{},
		}
	}

	t := &turn{engine: e, state: &state, rng: rng}
	for i := range players {
		t.draw(i, e.rules.OpeningHand)
	}
	t.beginTurn()

	if err := e.CheckInvariants(state); err != nil {
		return MatchState{}, nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	return state, t.events, nil
}

// Apply validates action against state and returns the successor state and
// the events it produced. On rejection the input state is returned as is.
// Every applied action, forced ones included, advances Sequence by one.
func (e *Engine) Apply(state MatchState, action Action) (MatchState, []Event, error) {
	actor, err := e.validate(state, action)
	if err != nil {
		return state, nil, err
	}

	next := state.Clone()
	t := &turn{engine: e, state: &next, rng: newRand(next.Seed, next.Sequence+1)}
	if action.Forced {
		t.emit(Event{Kind: EventForcedAction, Player: actor, Phase: next.Phase})
	}
	t.resolve(actor, action)
	next.Sequence++

	if err := e.CheckInvariants(next); err != nil {
		return state, nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	return next, t.events, nil
}

// Terminate ends a match outside the action flow (disconnect timeouts,
// integrity failures). It does not advance the sequence.
func Terminate(state MatchState, winner int, reason EndReason) MatchState {
	next := state.Clone()
	next.Status = StatusFinished
	next.Winner = winner
	next.Reason = reason
	next.Attack = nil
	return next
}

var phaseActions = map[Phase][]ActionType{
	PhaseMain:   {ActionSummon, ActionPlay, ActionEquip, ActionEndPhase},
	PhaseAttack: {ActionPlay, ActionPass},
	PhaseEnd:    {ActionBank, ActionEndTurn},
}

// Actor returns the seat expected to act in the current phase. During
// ATTACK that is the defender.
func (s MatchState) Actor() int {
	if s.Phase == PhaseAttack {
		return opponent(s.CurrentPlayer)
	}
	return s.CurrentPlayer
}

func (e *Engine) validate(state MatchState, action Action) (int, error) {
	if state.Finished() {
		return -1, reject(CodeMatchFinished, "match %s is finished", state.MatchID)
	}
	if action.Payload == nil {
		return -1, reject(CodeInvalidAction, "action has no payload")
	}
	actor := state.IndexOf(action.PlayerID)
	if actor < 0 {
		return -1, reject(CodeInvalidAction, "player %s is not in match %s", action.PlayerID, state.MatchID)
	}

	typ := action.Type()
	if typ == ActionConcede {
		return actor, nil
	}
	if !slices.Contains(phaseActions[state.Phase], typ) {
		return -1, reject(CodeInvalidPhase, "%s is not allowed during %s", typ, state.Phase)
	}
	if actor != state.Actor() {
		return -1, reject(CodeNotYourTurn, "it is not %s's turn to act", action.PlayerID)
	}

	switch p := action.Payload.(type) {
	case SummonPayload, PlayPayload, EquipPayload:
		return actor, e.validateCard(state, actor, action)
	case BankPayload:
		return actor, e.validateBank(state.Players[actor], p.Amount)
	}
	return actor, nil
}

func (e *Engine) validateCard(state MatchState, actor int, action Action) error {
	ref := action.cardRef()
	card, ok := e.cards.Card(ref)
	if !ok {
		return reject(CodeUnknownCard, "card %s does not exist", ref)
	}
	p := state.Players[actor]
	if !slices.Contains(p.Hand, ref) {
		return reject(CodeUnknownCard, "card %s is not in hand", ref)
	}

	switch action.Type() {
	case ActionSummon:
		if card.Category != CategoryHero {
			return reject(CodeInvalidAction, "%s is not a hero", ref)
		}
	case ActionEquip:
		if card.Category != CategoryEquipment {
			return reject(CodeInvalidAction, "%s is not equipment", ref)
		}
		if p.Hero == nil {
			return reject(CodeInvalidAction, "equipment needs a hero in play")
		}
	case ActionPlay:
		if card.Category != CategoryAction {
			return reject(CodeInvalidAction, "%s is not an action card", ref)
		}
		if state.Phase == PhaseAttack && card.Speed != SpeedInstant {
			return reject(CodeInvalidPhase, "only instant cards can be played as a reaction")
		}
	}

	if !canAfford(p, card.Cost) {
		return reject(CodeInsufficientResource, "cannot pay for %s", ref)
	}
	return nil
}

func (e *Engine) validateBank(p PlayerState, amount int) error {
	if p.BankUsed {
		return reject(CodeInvalidAction, "energy was already banked this turn")
	}
	if amount <= 0 {
		return reject(CodeInvalidAction, "bank amount must be positive")
	}
	if amount > p.Energy {
		return reject(CodeInsufficientResource, "only %d energy available", p.Energy)
	}
	if p.Banked+amount > e.rules.BankCap {
		return reject(CodeInsufficientResource, "bank holds at most %d", e.rules.BankCap)
	}
	return nil
}

func canAfford(p PlayerState, cost Cost) bool {
	if p.Energy < cost.Energy {
		return false
	}
	for c, n := range cost.Mana {
		if p.Mana[c] < n {
			return false
		}
	}
	return true
}
