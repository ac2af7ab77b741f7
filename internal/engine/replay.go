package engine

import "fmt"

// Setup is everything needed to rebuild a match from the beginning.
type Setup struct {
	MatchID string
	Seed    int64
	Players [2]string
	Decks   [2][]string
}

// Replay rebuilds the state reached by applying log to a fresh match. Every
// logged action must apply cleanly; a rejection means the log diverged.
func (e *Engine) Replay(setup Setup, log []Action) (MatchState, error) {
	state, _, err := e.NewMatch(setup.MatchID, setup.Seed, setup.Players, setup.Decks)
	if err != nil {
		return MatchState{}, err
	}
	for i, a := range log {
		next, _, err := e.Apply(state, a)
		if err != nil {
			return state, fmt.Errorf("replay step %d (%s by %s): %w", i, a.Type(), a.PlayerID, err)
		}
		state = next
	}
	return state, nil
}
