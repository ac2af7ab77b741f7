package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nexuscards/battle/internal/config"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyQueued = errors.New("player is already queued")
	ErrNotQueued     = errors.New("player is not queued")
)

// Entry is a player waiting for an opponent.
type Entry struct {
	PlayerID    string    `json:"player_id"`
	Elo         int       `json:"elo"`
	RequestedAt time.Time `json:"requested_at"`
}

func (e Entry) Wait(now time.Time) time.Duration {
	return now.Sub(e.RequestedAt)
}

// Notifier delivers queue outcomes to players.
type Notifier interface {
	MatchFound(player, opponent Entry, matchID string)
	QueueTimeout(entry Entry)
}

// MatchCreator allocates a match for a pair. StartMatch is called once both
// players have been told about the match.
type MatchCreator interface {
	CreateMatch(ctx context.Context, a, b Entry) (string, error)
	StartMatch(matchID string) error
}

type Settings struct {
	MaxWait    time.Duration
	Thresholds Thresholds
}

func DefaultSettings() Settings {
	return Settings{MaxWait: 180 * time.Second, Thresholds: DefaultThresholds()}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxWait: cfg.QueueMaxWait,
		Thresholds: Thresholds{
			Base:         cfg.QueueBaseThreshold,
			Step:         cfg.QueueThresholdStep,
			StepInterval: cfg.QueueThresholdStepInterval,
			Cap:          cfg.QueueThresholdCap,
		},
	}
}

// Manager owns the waiting entries. Entries are kept oldest first.
type Manager struct {
	mu       sync.Mutex
	entries  []Entry
	settings Settings
	creator  MatchCreator
	notifier Notifier
	clock    clockwork.Clock
}

func NewManager(settings Settings, creator MatchCreator, notifier Notifier, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		settings: settings,
		creator:  creator,
		notifier: notifier,
		clock:    clock,
	}
}

func (m *Manager) Enqueue(playerID string, elo int) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(playerID) >= 0 {
		return Entry{}, ErrAlreadyQueued
	}
	entry := Entry{PlayerID: playerID, Elo: elo, RequestedAt: m.clock.Now()}
	m.insert(entry)

	log.Info().Str("player_id", playerID).Int("elo", elo).Int("depth", len(m.entries)).Msg("[QUEUE] Player queued")
	return entry, nil
}

func (m *Manager) Cancel(playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(playerID)
	if i < 0 {
		return false
	}
	m.entries = slices.Delete(m.entries, i, i+1)
	log.Info().Str("player_id", playerID).Msg("[QUEUE] Player left queue")
	return true
}

// Position is the 1-based place of playerID in the queue.
func (m *Manager) Position(playerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(playerID)
	if i < 0 {
		return 0, ErrNotQueued
	}
	return i + 1, nil
}

type Status struct {
	Depth      int           `json:"depth"`
	OldestWait time.Duration `json:"-"`
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{Depth: len(m.entries)}
	if len(m.entries) > 0 {
		s.OldestWait = m.entries[0].Wait(m.clock.Now())
	}
	return s
}

type SweepResult struct {
	Matched int
	Expired int
	Failed  int
}

// Sweep expires stale entries and pairs compatible ones. It holds the queue
// for its whole run, so no entry can be paired twice.
func (m *Manager) Sweep(ctx context.Context) SweepResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res SweepResult
	now := m.clock.Now()

	waiting := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Wait(now) >= m.settings.MaxWait {
			res.Expired++
			log.Info().Str("player_id", e.PlayerID).Dur("waited", e.Wait(now)).Msg("[QUEUE] Entry timed out")
			m.notifier.QueueTimeout(e)
			continue
		}
		waiting = append(waiting, e)
	}

	paired := make([]bool, len(waiting))
	var pairs [][2]Entry
	for i := range waiting {
		if paired[i] {
			continue
		}
		for j := i + 1; j < len(waiting); j++ {
			if paired[j] || !m.compatible(waiting[i], waiting[j], now) {
				continue
			}
			paired[i], paired[j] = true, true
			pairs = append(pairs, [2]Entry{waiting[i], waiting[j]})
			break
		}
	}

	m.entries = m.entries[:0]
	for i, e := range waiting {
		if !paired[i] {
			m.entries = append(m.entries, e)
		}
	}

	for _, p := range pairs {
		a, b := p[0], p[1]
		matchID, err := m.creator.CreateMatch(ctx, a, b)
		if err != nil {
			res.Failed++
			log.Error().Err(err).Str("player_a", a.PlayerID).Str("player_b", b.PlayerID).Msg("[QUEUE] Match creation failed, restoring entries")
			m.insert(a)
			m.insert(b)
			continue
		}

		res.Matched++
		log.Info().
			Str("match_id", matchID).
			Str("player_a", a.PlayerID).
			Str("player_b", b.PlayerID).
			Int("elo_gap", abs(a.Elo-b.Elo)).
			Msg("[QUEUE] ✓ Match created")

		m.notifier.MatchFound(a, b, matchID)
		m.notifier.MatchFound(b, a, matchID)
		if err := m.creator.StartMatch(matchID); err != nil {
			log.Error().Err(err).Str("match_id", matchID).Msg("[QUEUE] Failed to start match")
		}
	}
	return res
}

func (m *Manager) compatible(a, b Entry, now time.Time) bool {
	if a.PlayerID == b.PlayerID {
		return false
	}
	return abs(a.Elo-b.Elo) <= m.settings.Thresholds.ForPair(a, b, now)
}

func (m *Manager) indexOf(playerID string) int {
	return slices.IndexFunc(m.entries, func(e Entry) bool { return e.PlayerID == playerID })
}

// insert keeps entries ordered by request time, oldest first.
func (m *Manager) insert(e Entry) {
	i := len(m.entries)
	for i > 0 && m.entries[i-1].RequestedAt.After(e.RequestedAt) {
		i--
	}
	m.entries = slices.Insert(m.entries, i, e)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
