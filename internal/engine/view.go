package engine

import (
	"encoding/json"
	"reflect"
	"strconv"
	"time"
)

// PlayerView is one seat as seen by a viewer. Hand is only filled in for
// the viewer's own seat; the opponent's hand and every deck are counts.
type PlayerView struct {
	PlayerID    string        `json:"player_id"`
	Health      int           `json:"health"`
	Energy      int           `json:"energy"`
	Banked      int           `json:"banked"`
	Shield      int           `json:"shield"`
	Mana        map[Color]int `json:"mana"`
	Hero        *string       `json:"hero"`
	Board       []string      `json:"board"`
	Hand        []string      `json:"hand,omitempty"`
	HandCount   int           `json:"hand_count"`
	DeckCount   int           `json:"deck_count"`
	Discard     []string      `json:"discard"`
	PendingSlow int           `json:"pending_slow"`
}

type MatchView struct {
	MatchID       string        `json:"match_id"`
	You           int           `json:"you"`
	TurnNumber    int           `json:"turn_number"`
	Phase         Phase         `json:"phase"`
	CurrentPlayer int           `json:"current_player_index"`
	Sequence      int64         `json:"sequence_number"`
	PhaseDeadline time.Time     `json:"phase_deadline"`
	Attack        *AttackWindow `json:"attack"`
	Status        Status        `json:"status"`
	Winner        int           `json:"winner"`
	Reason        EndReason     `json:"reason,omitempty"`
	Players       [2]PlayerView `json:"players"`
}

// ViewFor projects s for the player in seat viewer.
func ViewFor(s MatchState, viewer int) MatchView {
	v := MatchView{
		MatchID:       s.MatchID,
		You:           viewer,
		TurnNumber:    s.TurnNumber,
		Phase:         s.Phase,
		CurrentPlayer: s.CurrentPlayer,
		Sequence:      s.Sequence,
		PhaseDeadline: s.PhaseDeadline,
		Status:        s.Status,
		Winner:        s.Winner,
		Reason:        s.Reason,
	}
	if s.Attack != nil {
		a := *s.Attack
		v.Attack = &a
	}
	for i, p := range s.Players {
		pv := PlayerView{
			PlayerID:    p.PlayerID,
			Health:      p.Health,
			Energy:      p.Energy,
			Banked:      p.Banked,
			Shield:      p.Shield,
			Mana:        make(map[Color]int, len(p.Mana)),
			Board:       cloneRefs(p.Board),
			HandCount:   len(p.Hand),
			DeckCount:   len(p.Deck),
			Discard:     cloneRefs(p.Discard),
			PendingSlow: len(p.PendingSlow),
		}
		for c, n := range p.Mana {
			pv.Mana[c] = n
		}
		if p.Hero != nil {
			h := *p.Hero
			pv.Hero = &h
		}
		if i == viewer {
			pv.Hand = cloneRefs(p.Hand)
		}
		v.Players[i] = pv
	}
	return v
}

// Diff returns the fields of next that differ from prev as a nested JSON
// object. Nested objects are diffed recursively, arrays of objects by
// index, and anything else is replaced wholesale. Removed keys map to nil.
func Diff(prev, next MatchView) (map[string]any, error) {
	a, err := toJSONMap(prev)
	if err != nil {
		return nil, err
	}
	b, err := toJSONMap(next)
	if err != nil {
		return nil, err
	}
	return diffMaps(a, b), nil
}

func toJSONMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diffMaps(a, b map[string]any) map[string]any {
	out := map[string]any{}
	for k, bv := range b {
		av, ok := a[k]
		if !ok {
			out[k] = bv
			continue
		}
		if d, changed := diffValues(av, bv); changed {
			out[k] = d
		}
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

func diffValues(a, b any) (any, bool) {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		d := diffMaps(am, bm)
		return d, len(d) > 0
	}

	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice && bIsSlice && len(as) == len(bs) && allMaps(as) && allMaps(bs) {
		d := map[string]any{}
		for i := range bs {
			if sub, changed := diffValues(as[i], bs[i]); changed {
				d[strconv.Itoa(i)] = sub
			}
		}
		return d, len(d) > 0
	}

	if reflect.DeepEqual(a, b) {
		return nil, false
	}
	return b, true
}

func allMaps(vs []any) bool {
	for _, v := range vs {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}
