package match

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nexuscards/battle/internal/config"
	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/queue"
	"github.com/rs/zerolog/log"
)

// DeckSource supplies the deck a player brings to a match.
type DeckSource interface {
	Deck(ctx context.Context, playerID string) ([]string, error)
}

type Settings struct {
	PhaseDurations  map[engine.Phase]time.Duration
	TickInterval    time.Duration
	DisconnectGrace time.Duration
	KFactor         float64
	PersistTimeout  time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		PhaseDurations: map[engine.Phase]time.Duration{
			engine.PhaseMain:   60 * time.Second,
			engine.PhaseAttack: 15 * time.Second,
			engine.PhaseEnd:    20 * time.Second,
		},
		TickInterval:    time.Second,
		DisconnectGrace: 60 * time.Second,
		KFactor:         DefaultKFactor,
		PersistTimeout:  500 * time.Millisecond,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	mainPhase, attack, end := cfg.PhaseDurations()
	s := DefaultSettings()
	s.PhaseDurations = map[engine.Phase]time.Duration{
		engine.PhaseMain:   mainPhase,
		engine.PhaseAttack: attack,
		engine.PhaseEnd:    end,
	}
	s.TickInterval = cfg.TimerTickInterval
	s.DisconnectGrace = time.Duration(cfg.DisconnectGraceSeconds) * time.Second
	s.KFactor = cfg.EloKFactor
	if cfg.MatchPersistTimeout > 0 {
		s.PersistTimeout = cfg.MatchPersistTimeout
	}
	return s
}

// Deps are the collaborators shared by every match.
type Deps struct {
	Engine    *engine.Engine
	Decks     DeckSource
	Notifier  Notifier
	Snapshots SnapshotStore
	History   HistoryStore
	Results   ResultReporter
	Clock     clockwork.Clock
	Settings  Settings
}

// Participant is one side of a match about to be created.
type Participant struct {
	PlayerID string
	Elo      int
}

// Registry indexes live match managers by match and by player.
type Registry struct {
	deps Deps

	mu       sync.RWMutex
	matches  map[string]*Manager
	byPlayer map[string]string
	ended    map[string]time.Time
}

func NewRegistry(deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Settings.PhaseDurations == nil {
		deps.Settings = DefaultSettings()
	}
	if deps.Settings.PersistTimeout <= 0 {
		deps.Settings.PersistTimeout = 500 * time.Millisecond
	}
	return &Registry{
		deps:     deps,
		matches:  make(map[string]*Manager),
		byPlayer: make(map[string]string),
		ended:    make(map[string]time.Time),
	}
}

// Create builds a match for a and b and starts its loop. Nothing is sent to
// the players until Start is called on the returned manager.
func (r *Registry) Create(ctx context.Context, a, b Participant) (*Manager, error) {
	if a.PlayerID == b.PlayerID {
		return nil, fmt.Errorf("create match: player %s cannot play themselves", a.PlayerID)
	}
	r.mu.RLock()
	for _, p := range []string{a.PlayerID, b.PlayerID} {
		if _, busy := r.byPlayer[p]; busy {
			r.mu.RUnlock()
			return nil, fmt.Errorf("create match for %s: %w", p, ErrPlayerInMatch)
		}
	}
	r.mu.RUnlock()

	players := [2]string{a.PlayerID, b.PlayerID}
	var decks [2][]string
	for i, p := range players {
		deck, err := r.deps.Decks.Deck(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("load deck for %s: %w", p, err)
		}
		decks[i] = deck
	}

	setup := engine.Setup{
		MatchID: uuid.NewString(),
		Seed:    rand.Int64(),
		Players: players,
		Decks:   decks,
	}
	state, _, err := r.deps.Engine.NewMatch(setup.MatchID, setup.Seed, setup.Players, setup.Decks)
	if err != nil {
		return nil, fmt.Errorf("new match: %w", err)
	}

	m := newManager(setup, state, [2]int{a.Elo, b.Elo}, r.deps, r.matchEnded)

	r.mu.Lock()
	for _, p := range players {
		if _, busy := r.byPlayer[p]; busy {
			r.mu.Unlock()
			return nil, fmt.Errorf("create match for %s: %w", p, ErrPlayerInMatch)
		}
	}
	r.matches[m.id] = m
	for _, p := range players {
		r.byPlayer[p] = m.id
	}
	r.mu.Unlock()

	go m.run()
	log.Info().Str("match_id", m.id).Strs("players", players[:]).Msg("[MATCH] Created")
	return m, nil
}

// CreateMatch lets the queue allocate matches.
func (r *Registry) CreateMatch(ctx context.Context, a, b queue.Entry) (string, error) {
	m, err := r.Create(ctx, Participant{PlayerID: a.PlayerID, Elo: a.Elo}, Participant{PlayerID: b.PlayerID, Elo: b.Elo})
	if err != nil {
		return "", err
	}
	return m.ID(), nil
}

func (r *Registry) StartMatch(matchID string) error {
	m, ok := r.Get(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	m.Start()
	return nil
}

func (r *Registry) Get(matchID string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[matchID]
	return m, ok
}

// ForPlayer returns the live match the player is seated in, if any.
func (r *Registry) ForPlayer(playerID string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	m, ok := r.matches[id]
	return m, ok
}

// Active returns the number of matches still being played.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches) - len(r.ended)
}

// matchEnded runs on the match loop once the result is recorded.
func (r *Registry) matchEnded(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range m.Players() {
		if r.byPlayer[p] == m.id {
			delete(r.byPlayer, p)
		}
	}
	r.ended[m.id] = r.deps.Clock.Now()
}

// Reap stops and forgets matches that ended more than retention ago.
func (r *Registry) Reap(retention time.Duration) int {
	now := r.deps.Clock.Now()
	var stale []*Manager

	r.mu.Lock()
	for id, at := range r.ended {
		if now.Sub(at) < retention {
			continue
		}
		if m, ok := r.matches[id]; ok {
			stale = append(stale, m)
		}
		delete(r.matches, id)
		delete(r.ended, id)
	}
	r.mu.Unlock()

	for _, m := range stale {
		m.Stop()
	}
	if len(stale) > 0 {
		log.Debug().Int("reaped", len(stale)).Msg("[MATCH] Reaped finished matches")
	}
	return len(stale)
}

// Shutdown stops every manager, finished or not.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Manager, 0, len(r.matches))
	for _, m := range r.matches {
		all = append(all, m)
	}
	r.matches = make(map[string]*Manager)
	r.byPlayer = make(map[string]string)
	r.ended = make(map[string]time.Time)
	r.mu.Unlock()

	for _, m := range all {
		m.Stop()
	}
	log.Info().Int("matches", len(all)).Msg("[MATCH] Registry shut down")
}
