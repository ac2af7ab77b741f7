package engine

import (
	"encoding/json"
	"strings"
)

type ActionType string

const (
	ActionSummon   ActionType = "summon"
	ActionPlay     ActionType = "play"
	ActionEquip    ActionType = "equip"
	ActionEndPhase ActionType = "end_phase"
	ActionPass     ActionType = "pass"
	ActionBank     ActionType = "bank"
	ActionEndTurn  ActionType = "end_turn"
	ActionConcede  ActionType = "concede"
)

// Payload is the type-specific body of an Action.
type Payload interface {
	Type() ActionType
}

type SummonPayload struct {
	CardRef string `json:"card_ref"`
}

type PlayPayload struct {
	CardRef string `json:"card_ref"`
}

type EquipPayload struct {
	CardRef string `json:"card_ref"`
}

type BankPayload struct {
	Amount int `json:"amount"`
}

type EndPhasePayload struct{}

type PassPayload struct{}

type EndTurnPayload struct{}

type ConcedePayload struct{}

func (SummonPayload) Type() ActionType   { return ActionSummon }
func (PlayPayload) Type() ActionType     { return ActionPlay }
func (EquipPayload) Type() ActionType    { return ActionEquip }
func (BankPayload) Type() ActionType     { return ActionBank }
func (EndPhasePayload) Type() ActionType { return ActionEndPhase }
func (PassPayload) Type() ActionType     { return ActionPass }
func (EndTurnPayload) Type() ActionType  { return ActionEndTurn }
func (ConcedePayload) Type() ActionType  { return ActionConcede }

// Action is a player's (or the server's, when Forced) request to change a match.
type Action struct {
	MatchID          string
	PlayerID         string
	Payload          Payload
	ExpectedSequence int64
	Forced           bool
}

func (a Action) Type() ActionType {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Type()
}

// cardRef returns the card a card-bearing action refers to.
func (a Action) cardRef() string {
	switch p := a.Payload.(type) {
	case SummonPayload:
		return p.CardRef
	case PlayPayload:
		return p.CardRef
	case EquipPayload:
		return p.CardRef
	}
	return ""
}

// RawAction is the wire form of an action inside match.action.
type RawAction struct {
	Type             ActionType      `json:"type"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	ExpectedSequence int64           `json:"expected_sequence"`
}

// DecodeAction validates the shape of a wire action and builds the typed
// Action. Malformed input is rejected with INVALID_ACTION.
func DecodeAction(matchID, playerID string, raw RawAction) (Action, error) {
	action := Action{MatchID: matchID, PlayerID: playerID, ExpectedSequence: raw.ExpectedSequence}

	var payload Payload
	switch raw.Type {
	case ActionSummon:
		var p SummonPayload
		if err := decodePayload(raw.Payload, &p); err != nil {
			return action, err
		}
		payload = p
	case ActionPlay:
		var p PlayPayload
		if err := decodePayload(raw.Payload, &p); err != nil {
			return action, err
		}
		payload = p
	case ActionEquip:
		var p EquipPayload
		if err := decodePayload(raw.Payload, &p); err != nil {
			return action, err
		}
		payload = p
	case ActionBank:
		var p BankPayload
		if err := decodePayload(raw.Payload, &p); err != nil {
			return action, err
		}
		if p.Amount <= 0 {
			return action, reject(CodeInvalidAction, "bank amount must be positive")
		}
		payload = p
	case ActionEndPhase:
		payload = EndPhasePayload{}
	case ActionPass:
		payload = PassPayload{}
	case ActionEndTurn:
		payload = EndTurnPayload{}
	case ActionConcede:
		payload = ConcedePayload{}
	default:
		return action, reject(CodeInvalidAction, "unknown action type %q", raw.Type)
	}

	if ref := (Action{Payload: payload}).cardRef(); ref == "" && isCardAction(payload.Type()) {
		return action, reject(CodeInvalidAction, "%s requires card_ref", payload.Type())
	}

	action.Payload = payload
	return action, nil
}

func decodePayload(data json.RawMessage, into any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return reject(CodeInvalidAction, "malformed payload: %s", strings.TrimSpace(err.Error()))
	}
	return nil
}

func isCardAction(t ActionType) bool {
	return t == ActionSummon || t == ActionPlay || t == ActionEquip
}

type actionJSON struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
	Forced   bool   `json:"forced,omitempty"`
	RawAction
}

// MarshalJSON writes the action in its wire form so logs can be replayed.
func (a Action) MarshalJSON() ([]byte, error) {
	var payload json.RawMessage
	if a.Payload != nil {
		b, err := json.Marshal(a.Payload)
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return json.Marshal(actionJSON{
		MatchID:  a.MatchID,
		PlayerID: a.PlayerID,
		Forced:   a.Forced,
		RawAction: RawAction{
			Type:             a.Type(),
			Payload:          payload,
			ExpectedSequence: a.ExpectedSequence,
		},
	})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var aj actionJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	decoded, err := DecodeAction(aj.MatchID, aj.PlayerID, aj.RawAction)
	if err != nil {
		return err
	}
	decoded.Forced = aj.Forced
	*a = decoded
	return nil
}
