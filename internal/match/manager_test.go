package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCards map[string]engine.Card

func (c testCards) Card(ref string) (engine.Card, bool) {
	card, ok := c[ref]
	return card, ok
}

var cardSet = testCards{
	"pebble": {Ref: "pebble", Category: engine.CategoryAction, Speed: engine.SpeedNormal,
		Effects: []engine.Effect{{Kind: engine.EffectDamage, Amount: 1}}},
	// leaves the player with negative energy, which no real card may do
	"drain": {Ref: "drain", Category: engine.CategoryAction, Speed: engine.SpeedNormal,
		Effects: []engine.Effect{{Kind: engine.EffectGainEnergy, Amount: -100}}},
}

type fixedDecks struct {
	card string
}

func (d fixedDecks) Deck(context.Context, string) ([]string, error) {
	deck := make([]string, 20)
	for i := range deck {
		deck[i] = d.card
	}
	return deck, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs map[string][]protocol.Message
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{msgs: make(map[string][]protocol.Message)}
}

func (n *recordingNotifier) Notify(playerID string, msg protocol.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs[playerID] = append(n.msgs[playerID], msg)
}

func (n *recordingNotifier) ofType(playerID, typ string) []protocol.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []protocol.Message
	for _, m := range n.msgs[playerID] {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (n *recordingNotifier) types(playerID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.msgs[playerID] {
		out = append(out, m.Type)
	}
	return out
}

type recordingResults struct {
	mu      sync.Mutex
	results []Result
}

func (r *recordingResults) Report(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recordingResults) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

type memoryHistory struct {
	mu   sync.Mutex
	rows []Result
}

func (h *memoryHistory) Write(_ context.Context, res Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, res)
	return nil
}

func (h *memoryHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rows)
}

type harness struct {
	registry *Registry
	notifier *recordingNotifier
	results  *recordingResults
	history  *memoryHistory
	clock    *clockwork.FakeClock
}

func testSettings() Settings {
	return Settings{
		PhaseDurations: map[engine.Phase]time.Duration{
			engine.PhaseMain:   60 * time.Second,
			engine.PhaseAttack: 15 * time.Second,
			engine.PhaseEnd:    20 * time.Second,
		},
		TickInterval:    time.Second,
		DisconnectGrace: 90 * time.Second,
		KFactor:         DefaultKFactor,
		PersistTimeout:  time.Second,
	}
}

func newHarness(t *testing.T, settings Settings, deckCard string) *harness {
	t.Helper()
	h := &harness{
		notifier: newRecordingNotifier(),
		results:  &recordingResults{},
		history:  &memoryHistory{},
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)),
	}
	h.registry = NewRegistry(Deps{
		Engine:   engine.New(cardSet, engine.DefaultRules()),
		Decks:    fixedDecks{card: deckCard},
		Notifier: h.notifier,
		History:  h.history,
		Results:  h.results,
		Clock:    h.clock,
		Settings: settings,
	})
	t.Cleanup(h.registry.Shutdown)
	return h
}

// startMatch creates and starts a match between alice (seat 0) and bob.
func (h *harness) startMatch(t *testing.T) *Manager {
	t.Helper()
	m, err := h.registry.Create(context.Background(), Participant{"alice", 1000}, Participant{"bob", 1000})
	require.NoError(t, err)
	m.Start()
	flush(t, m)
	return m
}

// flush waits until every command queued before it has run.
func flush(t *testing.T, m *Manager) {
	t.Helper()
	_, err := m.ActionLog(context.Background())
	require.NoError(t, err)
}

func structural(m *Manager, playerID string, p engine.Payload, seq int64) engine.Action {
	return engine.Action{MatchID: m.ID(), PlayerID: playerID, Payload: p, ExpectedSequence: seq}
}

func waitForSequence(t *testing.T, m *Manager, seq int64) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Summary().Sequence == seq }, time.Second, 5*time.Millisecond)
}

func waitForEnd(t *testing.T, m *Manager) Summary {
	t.Helper()
	require.Eventually(t, func() bool { return m.Summary().Result != nil }, time.Second, 5*time.Millisecond)
	return m.Summary()
}

func TestStartSendsEachPlayerTheirView(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)

	for seat, player := range []string{"alice", "bob"} {
		starts := h.notifier.ofType(player, protocol.TypeMatchStart)
		require.Len(t, starts, 1)
		data := starts[0].Data.(protocol.MatchStart)
		assert.Equal(t, m.ID(), data.MatchID)
		assert.Equal(t, m.Setup().Seed, data.Seed)
		assert.Equal(t, seat, data.InitialState.You)

		ticks := h.notifier.ofType(player, protocol.TypeTimerTick)
		require.Len(t, ticks, 1)
		assert.Equal(t, int64(60000), ticks[0].Data.(protocol.TimerTick).RemainingMs)
	}

	s := m.Summary()
	assert.Equal(t, engine.PhaseMain, s.Phase)
	assert.Equal(t, int64(0), s.Sequence)
	assert.Equal(t, h.clock.Now().Add(60*time.Second), s.PhaseDeadline)
}

func TestSubmitBroadcastsPatchToBoth(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)

	err := m.Submit(context.Background(), structural(m, "alice", engine.EndPhasePayload{}, 0))
	require.NoError(t, err)

	for _, player := range []string{"alice", "bob"} {
		patches := h.notifier.ofType(player, protocol.TypeMatchPatch)
		require.Len(t, patches, 1)
		p := patches[0].Data.(protocol.MatchPatch)
		assert.Equal(t, int64(1), p.SequenceNumber)
		assert.Equal(t, int64(1), patches[0].Sequence)
		assert.Equal(t, string(engine.PhaseAttack), p.Diff["phase"])
	}
	assert.Equal(t, engine.PhaseAttack, m.Summary().Phase)

	log, err := m.ActionLog(context.Background())
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestSubmitRejectsStaleSequence(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)
	require.NoError(t, m.Submit(context.Background(), structural(m, "alice", engine.EndPhasePayload{}, 0)))

	err := m.Submit(context.Background(), structural(m, "bob", engine.PassPayload{}, 0))

	rej, ok := engine.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodeStaleSequence, rej.Code)
	assert.Equal(t, int64(1), m.Summary().Sequence)
	assert.Len(t, h.notifier.ofType("bob", protocol.TypeMatchPatch), 1)
}

func TestRejectedActionIsNotBroadcast(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)

	err := m.Submit(context.Background(), structural(m, "bob", engine.EndPhasePayload{}, 0))

	rej, ok := engine.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodeNotYourTurn, rej.Code)
	assert.Empty(t, h.notifier.ofType("alice", protocol.TypeMatchPatch))
	assert.Empty(t, h.notifier.ofType("bob", protocol.TypeMatchPatch))
}

func TestPhaseTimeoutForcesDefaultTransitions(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)

	h.clock.Advance(60 * time.Second)
	waitForSequence(t, m, 1)
	assert.Equal(t, engine.PhaseAttack, m.Summary().Phase)

	patch := h.notifier.ofType("alice", protocol.TypeMatchPatch)[0].Data.(protocol.MatchPatch)
	require.NotEmpty(t, patch.Events)
	assert.Equal(t, engine.EventForcedAction, patch.Events[0].Kind)

	h.clock.Advance(15 * time.Second)
	waitForSequence(t, m, 2)
	assert.Equal(t, engine.PhaseEnd, m.Summary().Phase)

	h.clock.Advance(20 * time.Second)
	waitForSequence(t, m, 3)
	s := m.Summary()
	assert.Equal(t, engine.PhaseMain, s.Phase)
	assert.Equal(t, 1, s.CurrentPlayer)
	assert.Equal(t, 2, s.TurnNumber)
}

func TestTickPrecedesForcedTransition(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)

	h.clock.Advance(60 * time.Second)
	waitForSequence(t, m, 1)
	flush(t, m)

	types := h.notifier.types("bob")
	firstTick, firstPatch := -1, -1
	for i, typ := range types {
		if typ == protocol.TypeTimerTick && firstTick < 0 {
			firstTick = i
		}
		if typ == protocol.TypeMatchPatch && firstPatch < 0 {
			firstPatch = i
		}
	}
	require.GreaterOrEqual(t, firstTick, 0)
	assert.Less(t, firstTick, firstPatch)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)
	stale := PhaseToken{Turn: 1, Phase: engine.PhaseMain, Sequence: 0, Epoch: 1}

	h.clock.Advance(30 * time.Second)
	require.NoError(t, m.Submit(context.Background(), structural(m, "alice", engine.EndPhasePayload{}, 0)))

	m.PhaseTimerExpired(stale)
	flush(t, m)
	h.clock.Advance(14 * time.Second)
	flush(t, m)

	assert.Equal(t, int64(1), m.Summary().Sequence)
	assert.Equal(t, engine.PhaseAttack, m.Summary().Phase)
}

func TestConcedeEndsMatchAndRatesIt(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)

	require.NoError(t, m.Concede(context.Background(), "alice"))

	s := m.Summary()
	require.NotNil(t, s.Result)
	assert.Equal(t, engine.StatusFinished, s.Status)
	assert.Equal(t, "bob", s.Result.WinnerID)
	assert.Equal(t, engine.ReasonConcede, s.Result.Reason)
	assert.Equal(t, [2]int{-16, 16}, s.Result.EloDelta)

	aliceEnd := h.notifier.ofType("alice", protocol.TypeMatchEnd)
	bobEnd := h.notifier.ofType("bob", protocol.TypeMatchEnd)
	require.Len(t, aliceEnd, 1)
	require.Len(t, bobEnd, 1)
	assert.Equal(t, -16, aliceEnd[0].Data.(protocol.MatchEnd).Result.EloDelta)
	assert.Equal(t, 16, bobEnd[0].Data.(protocol.MatchEnd).Result.EloDelta)

	require.Len(t, h.results.all(), 1)
	require.Eventually(t, func() bool { return h.history.count() == 1 }, time.Second, 5*time.Millisecond)

	_, busy := h.registry.ForPlayer("alice")
	assert.False(t, busy)

	err := m.Submit(context.Background(), structural(m, "bob", engine.EndPhasePayload{}, s.Sequence))
	rej, ok := engine.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, engine.CodeMatchFinished, rej.Code)
}

func TestDisconnectedPlayerLosesAfterGrace(t *testing.T) {
	settings := testSettings()
	settings.DisconnectGrace = 30 * time.Second
	h := newHarness(t, settings, "pebble")
	m := h.startMatch(t)

	m.PlayerDisconnected("bob", 1)
	flush(t, m)
	assert.False(t, m.Summary().Suspended)

	h.clock.Advance(30 * time.Second)
	s := waitForEnd(t, m)
	assert.Equal(t, "alice", s.Result.WinnerID)
	assert.Equal(t, engine.ReasonTimeout, s.Result.Reason)
}

func TestReconnectWithinGraceCancelsForfeit(t *testing.T) {
	settings := testSettings()
	settings.DisconnectGrace = 30 * time.Second
	settings.PhaseDurations[engine.PhaseMain] = 10 * time.Minute
	h := newHarness(t, settings, "pebble")
	m := h.startMatch(t)

	m.PlayerDisconnected("bob", 1)
	flush(t, m)
	h.clock.Advance(10 * time.Second)
	m.PlayerConnected("bob", 2)
	flush(t, m)

	snaps := h.notifier.ofType("bob", protocol.TypeMatchSnapshot)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(0), snaps[0].Data.(protocol.MatchSnapshot).SequenceNumber)

	h.clock.Advance(time.Minute)
	flush(t, m)
	assert.Nil(t, m.Summary().Result)
}

func TestBothAbsentSuspendsThenDraws(t *testing.T) {
	settings := testSettings()
	settings.DisconnectGrace = 30 * time.Second
	settings.PhaseDurations[engine.PhaseMain] = 10 * time.Second
	h := newHarness(t, settings, "pebble")
	m := h.startMatch(t)

	m.PlayerDisconnected("alice", 1)
	m.PlayerDisconnected("bob", 1)
	flush(t, m)
	assert.True(t, m.Summary().Suspended)

	h.clock.Advance(10 * time.Second)
	flush(t, m)
	assert.Equal(t, int64(0), m.Summary().Sequence)

	h.clock.Advance(20 * time.Second)
	s := waitForEnd(t, m)
	assert.Equal(t, "", s.Result.WinnerID)
	assert.Equal(t, engine.ReasonDraw, s.Result.Reason)
	assert.Equal(t, [2]int{0, 0}, s.Result.EloDelta)
}

func TestResumeGivesFreshDeadline(t *testing.T) {
	settings := testSettings()
	settings.DisconnectGrace = 30 * time.Second
	h := newHarness(t, settings, "pebble")
	m := h.startMatch(t)

	m.PlayerDisconnected("alice", 1)
	m.PlayerDisconnected("bob", 1)
	flush(t, m)
	h.clock.Advance(20 * time.Second)
	m.PlayerConnected("alice", 2)
	flush(t, m)

	s := m.Summary()
	assert.False(t, s.Suspended)
	assert.Equal(t, h.clock.Now().Add(60*time.Second), s.PhaseDeadline)
	assert.Len(t, h.notifier.ofType("alice", protocol.TypeMatchSnapshot), 1)

	h.clock.Advance(10 * time.Second)
	s = waitForEnd(t, m)
	assert.Equal(t, "alice", s.Result.WinnerID)
	assert.Equal(t, engine.ReasonTimeout, s.Result.Reason)
}

func TestIntegrityFailureEndsAsUnratedDraw(t *testing.T) {
	h := newHarness(t, testSettings(), "drain")
	m := h.startMatch(t)

	err := m.Submit(context.Background(), engine.Action{
		MatchID: m.ID(), PlayerID: "alice", Payload: engine.PlayPayload{CardRef: "drain"}, ExpectedSequence: 0,
	})

	rej, ok := engine.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeInternal, rej.Code)

	s := m.Summary()
	require.NotNil(t, s.Result)
	assert.True(t, s.Result.Incident)
	assert.False(t, s.Result.Rated())
	assert.Equal(t, engine.ReasonDraw, s.Result.Reason)
	assert.Equal(t, [2]int{0, 0}, s.Result.EloDelta)
	assert.Equal(t, int64(0), s.Sequence)
	assert.Len(t, h.notifier.ofType("alice", protocol.TypeMatchEnd), 1)
	assert.Len(t, h.notifier.ofType("bob", protocol.TypeMatchEnd), 1)
}

func TestResyncSendsSnapshot(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)
	require.NoError(t, m.Submit(context.Background(), structural(m, "alice", engine.EndPhasePayload{}, 0)))

	view, err := m.Resync(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Sequence)
	assert.Equal(t, 1, view.You)

	snaps := h.notifier.ofType("bob", protocol.TypeMatchSnapshot)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(1), snaps[0].Sequence)

	_, err = m.Resync(context.Background(), "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestStoppedManagerRefusesCommands(t *testing.T) {
	h := newHarness(t, testSettings(), "pebble")
	m := h.startMatch(t)
	m.Stop()

	err := m.Submit(context.Background(), structural(m, "alice", engine.EndPhasePayload{}, 0))
	assert.ErrorIs(t, err, ErrMatchStopped)
}

func TestLateDisconnectOfReplacedConnectionIsIgnored(t *testing.T) {
	settings := testSettings()
	settings.DisconnectGrace = 30 * time.Second
	settings.PhaseDurations[engine.PhaseMain] = 10 * time.Minute
	h := newHarness(t, settings, "pebble")
	m := h.startMatch(t)

	// the new connection is reported before the old one's disconnect
	m.PlayerConnected("alice", 2)
	m.PlayerDisconnected("alice", 1)
	flush(t, m)
	assert.Equal(t, [2]bool{true, true}, m.Summary().Connected)

	h.clock.Advance(time.Minute)
	flush(t, m)
	assert.Nil(t, m.Summary().Result)

	m.PlayerDisconnected("alice", 2)
	flush(t, m)
	assert.Equal(t, [2]bool{false, true}, m.Summary().Connected)
}
