package engine

import (
	"math/rand/v2"
	"slices"
)

// turn carries the mutable working copy while one action resolves.
type turn struct {
	engine *Engine
	state  *MatchState
	rng    *rand.Rand
	events []Event
}

func (t *turn) emit(ev Event) {
	t.events = append(t.events, ev)
}

func (t *turn) player(i int) *PlayerState {
	return &t.state.Players[i]
}

// card looks up a ref that validation already proved to exist.
func (t *turn) card(ref string) Card {
	c, _ := t.engine.cards.Card(ref)
	return c
}

func (t *turn) resolve(actor int, a Action) {
	switch p := a.Payload.(type) {
	case SummonPayload:
		t.summon(actor, p.CardRef)
	case PlayPayload:
		t.play(actor, p.CardRef)
	case EquipPayload:
		t.equip(actor, p.CardRef)
	case EndPhasePayload:
		t.openAttack()
	case PassPayload:
		t.closeAttack()
	case BankPayload:
		t.bank(actor, p.Amount)
	case EndTurnPayload:
		t.endTurn()
	case ConcedePayload:
		t.finish(opponent(actor), ReasonConcede)
	}
}

func (t *turn) summon(actor int, ref string) {
	card := t.card(ref)
	p := t.player(actor)
	t.pay(p, card.Cost)
	p.Hand = removeOne(p.Hand, ref)

	if p.Hero != nil {
		t.discard(actor, *p.Hero)
		for _, eq := range p.Board {
			t.discard(actor, eq)
		}
		p.Board = []string{}
	}
	hero := ref
	p.Hero = &hero
	t.emit(Event{Kind: EventHeroSummoned, Player: actor, CardRef: ref})
}

func (t *turn) play(actor int, ref string) {
	card := t.card(ref)
	p := t.player(actor)
	t.pay(p, card.Cost)
	p.Hand = removeOne(p.Hand, ref)

	if card.Speed == SpeedSlow {
		p.PendingSlow = append(p.PendingSlow, ref)
		t.emit(Event{Kind: EventSlowQueued, Player: actor, CardRef: ref})
		return
	}

	t.emit(Event{Kind: EventCardPlayed, Player: actor, CardRef: ref})
	p.Discard = append(p.Discard, ref)
	t.applyEffects(actor, card)
	t.checkHealth()
}

func (t *turn) equip(actor int, ref string) {
	card := t.card(ref)
	p := t.player(actor)
	t.pay(p, card.Cost)
	p.Hand = removeOne(p.Hand, ref)
	p.Board = append(p.Board, ref)
	t.emit(Event{Kind: EventEquipped, Player: actor, CardRef: ref, Amount: card.Attack})
}

func (t *turn) openAttack() {
	cur := t.state.CurrentPlayer
	dmg := t.attackPower(cur)
	t.state.Attack = &AttackWindow{Attacker: cur, Damage: dmg}
	t.setPhase(PhaseAttack)
	t.emit(Event{Kind: EventAttackOpened, Player: cur, Amount: dmg})
}

func (t *turn) closeAttack() {
	w := t.state.Attack
	t.state.Attack = nil
	def := opponent(w.Attacker)
	d := t.player(def)

	dmg := w.Damage - min(d.Shield, w.Damage)
	d.Shield = 0
	t.emit(Event{Kind: EventAttackClosed, Player: w.Attacker, Amount: dmg})
	if dmg > 0 {
		t.damage(def, dmg)
	}
	if t.checkHealth() {
		return
	}
	t.setPhase(PhaseEnd)
}

func (t *turn) bank(actor int, amount int) {
	p := t.player(actor)
	p.Energy -= amount
	p.Banked += amount
	p.BankUsed = true
	t.emit(Event{Kind: EventEnergyBanked, Player: actor, Amount: amount})
}

func (t *turn) endTurn() {
	cur := t.state.CurrentPlayer
	p := t.player(cur)

	pending := p.PendingSlow
	p.PendingSlow = []string{}
	for _, ref := range pending {
		card := t.card(ref)
		t.emit(Event{Kind: EventCardPlayed, Player: cur, CardRef: ref})
		p.Discard = append(p.Discard, ref)
		t.applyEffects(cur, card)
	}
	if t.checkHealth() {
		return
	}

	t.state.CurrentPlayer = opponent(cur)
	t.beginTurn()
}

// beginTurn runs the transient START phase for the current player and
// leaves the match in MAIN.
func (t *turn) beginTurn() {
	s := t.state
	rules := t.engine.rules
	s.TurnNumber++
	if rules.TurnCap > 0 && s.TurnNumber > rules.TurnCap {
		t.finish(NoWinner, ReasonDraw)
		return
	}

	t.setPhase(PhaseStart)
	cur := s.CurrentPlayer
	p := t.player(cur)
	t.emit(Event{Kind: EventTurnStarted, Player: cur, Amount: s.TurnNumber})

	gain := rules.ArenaBonus + p.Banked
	if p.Hero != nil {
		gain += t.card(*p.Hero).BaseEnergy
	}
	p.Banked = 0
	p.BankUsed = false
	p.Energy += gain
	t.emit(Event{Kind: EventEnergyGained, Player: cur, Amount: gain})

	for _, c := range t.colorsInPlay(cur) {
		p.Mana[c]++
		t.emit(Event{Kind: EventManaGained, Player: cur, Color: c, Amount: 1})
	}

	t.draw(cur, 1)
	t.setPhase(PhaseMain)
}

func (t *turn) setPhase(phase Phase) {
	t.state.Phase = phase
	t.emit(Event{Kind: EventPhaseChanged, Player: t.state.CurrentPlayer, Phase: phase})
}

func (t *turn) finish(winner int, reason EndReason) {
	s := t.state
	s.Status = StatusFinished
	s.Winner = winner
	s.Reason = reason
	s.Attack = nil
	t.emit(Event{Kind: EventMatchEnded, Player: winner, Reason: reason})
}

// checkHealth ends the match if a player has no health left. It reports
// whether the match is over.
func (t *turn) checkHealth() bool {
	if t.state.Finished() {
		return true
	}
	dead0 := t.state.Players[0].Health <= 0
	dead1 := t.state.Players[1].Health <= 0
	switch {
	case dead0 && dead1:
		t.finish(NoWinner, ReasonDraw)
	case dead0:
		t.finish(1, ReasonHealthZero)
	case dead1:
		t.finish(0, ReasonHealthZero)
	default:
		return false
	}
	return true
}

func (t *turn) applyEffects(actor int, card Card) {
	for _, eff := range card.Effects {
		target := effectTarget(actor, eff)
		p := t.player(target)
		switch eff.Kind {
		case EffectDamage:
			t.damage(target, eff.Amount)
		case EffectDamageRandom:
			n := eff.Min
			if eff.Max > eff.Min {
				n += t.rng.IntN(eff.Max - eff.Min + 1)
			}
			t.damage(target, n)
		case EffectHeal:
			healed := min(p.Health+eff.Amount, t.engine.rules.StartingHealth) - p.Health
			p.Health += healed
			t.emit(Event{Kind: EventHealed, Player: target, Amount: healed, CardRef: card.Ref})
		case EffectGainEnergy:
			p.Energy += eff.Amount
			t.emit(Event{Kind: EventEnergyGained, Player: target, Amount: eff.Amount})
		case EffectGainMana:
			p.Mana[eff.Color] += eff.Amount
			t.emit(Event{Kind: EventManaGained, Player: target, Color: eff.Color, Amount: eff.Amount})
		case EffectDraw:
			t.draw(target, eff.Amount)
		case EffectShield:
			p.Shield += eff.Amount
			t.emit(Event{Kind: EventShieldRaised, Player: target, Amount: eff.Amount})
		}
	}
}

// effectTarget defaults damage to the opponent and everything else to the actor.
func effectTarget(actor int, eff Effect) int {
	switch eff.Target {
	case TargetSelf:
		return actor
	case TargetOpponent:
		return opponent(actor)
	}
	if eff.Kind == EffectDamage || eff.Kind == EffectDamageRandom {
		return opponent(actor)
	}
	return actor
}

func (t *turn) damage(target, amount int) {
	if amount <= 0 {
		return
	}
	p := t.player(target)
	p.Health = max(p.Health-amount, 0)
	t.emit(Event{Kind: EventDamageDealt, Player: target, Amount: amount})
}

// draw moves up to n cards from the top of the deck. Cards drawn into a
// full hand are burned.
func (t *turn) draw(i, n int) {
	p := t.player(i)
	for k := 0; k < n && len(p.Deck) > 0; k++ {
		ref := p.Deck[0]
		p.Deck = p.Deck[1:]
		if len(p.Hand) >= t.engine.rules.MaxHandSize {
			t.discard(i, ref)
			continue
		}
		p.Hand = append(p.Hand, ref)
		t.emit(Event{Kind: EventCardDrawn, Player: i})
	}
}

func (t *turn) discard(i int, ref string) {
	p := t.player(i)
	p.Discard = append(p.Discard, ref)
	t.emit(Event{Kind: EventCardDiscarded, Player: i, CardRef: ref})
}

func (t *turn) pay(p *PlayerState, cost Cost) {
	p.Energy -= cost.Energy
	for c, n := range cost.Mana {
		p.Mana[c] -= n
	}
}

func (t *turn) attackPower(i int) int {
	p := t.player(i)
	if p.Hero == nil {
		return 0
	}
	power := t.card(*p.Hero).Attack
	for _, ref := range p.Board {
		power += t.card(ref).Attack
	}
	return power
}

// colorsInPlay lists the distinct colors of the hero and its equipment in
// board order.
func (t *turn) colorsInPlay(i int) []Color {
	p := t.player(i)
	if p.Hero == nil {
		return nil
	}
	colors := []Color{t.card(*p.Hero).Color}
	for _, ref := range p.Board {
		c := t.card(ref).Color
		if c != "" && !slices.Contains(colors, c) {
			colors = append(colors, c)
		}
	}
	if colors[0] == "" {
		colors = colors[1:]
	}
	return colors
}

func removeOne(refs []string, ref string) []string {
	i := slices.Index(refs, ref)
	if i < 0 {
		return refs
	}
	return slices.Delete(refs, i, i+1)
}
