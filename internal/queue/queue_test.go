package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nexuscards/battle/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMatchCreator struct {
	mock.Mock
}

func (m *MockMatchCreator) CreateMatch(ctx context.Context, a, b Entry) (string, error) {
	args := m.Called(ctx, a, b)
	return args.String(0), args.Error(1)
}

func (m *MockMatchCreator) StartMatch(matchID string) error {
	args := m.Called(matchID)
	return args.Error(0)
}

type found struct {
	player, opponent, matchID string
}

type recordingNotifier struct {
	mu       sync.Mutex
	found    []found
	timedOut []string
}

func (n *recordingNotifier) MatchFound(player, opponent Entry, matchID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.found = append(n.found, found{player.PlayerID, opponent.PlayerID, matchID})
}

func (n *recordingNotifier) QueueTimeout(entry Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timedOut = append(n.timedOut, entry.PlayerID)
}

func newTestQueue(t *testing.T) (*Manager, *MockMatchCreator, *recordingNotifier, *clockwork.FakeClock) {
	t.Helper()
	creator := &MockMatchCreator{}
	notifier := &recordingNotifier{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewManager(DefaultSettings(), creator, notifier, clock), creator, notifier, clock
}

func byPlayer(id string) any {
	return mock.MatchedBy(func(e Entry) bool { return e.PlayerID == id })
}

func TestThresholdCurve(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, 100, th.At(0))
	assert.Equal(t, 100, th.At(9*time.Second))
	assert.Equal(t, 150, th.At(10*time.Second))
	assert.Equal(t, 300, th.At(45*time.Second))
	assert.Equal(t, 400, th.At(60*time.Second))
	assert.Equal(t, 400, th.At(170*time.Second))
}

func TestEnqueueTwiceFails(t *testing.T) {
	q, _, _, _ := newTestQueue(t)

	_, err := q.Enqueue("alice", 1000)
	require.NoError(t, err)
	_, err = q.Enqueue("alice", 1000)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestCancelAndPosition(t *testing.T) {
	q, _, _, clock := newTestQueue(t)
	q.Enqueue("alice", 1000)
	clock.Advance(time.Second)
	q.Enqueue("bob", 1000)

	pos, err := q.Position("bob")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	assert.True(t, q.Cancel("alice"))
	assert.False(t, q.Cancel("alice"))

	pos, err = q.Position("bob")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = q.Position("alice")
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestSweepPairsWithinBaseThreshold(t *testing.T) {
	q, creator, notifier, _ := newTestQueue(t)
	q.Enqueue("alice", 1000)
	q.Enqueue("bob", 1080)

	creator.On("CreateMatch", mock.Anything, byPlayer("alice"), byPlayer("bob")).Return("match-1", nil).Once()
	creator.On("StartMatch", "match-1").Return(nil).Once()

	res := q.Sweep(context.Background())

	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 0, q.Status().Depth)
	assert.Equal(t, []found{{"alice", "bob", "match-1"}, {"bob", "alice", "match-1"}}, notifier.found)
	creator.AssertExpectations(t)
}

func TestThresholdWidensWithWait(t *testing.T) {
	q, creator, _, clock := newTestQueue(t)
	q.Enqueue("alice", 1000)
	q.Enqueue("bob", 1300)

	res := q.Sweep(context.Background())
	assert.Equal(t, 0, res.Matched)
	creator.AssertNotCalled(t, "CreateMatch", mock.Anything, mock.Anything, mock.Anything)

	creator.On("CreateMatch", mock.Anything, byPlayer("alice"), byPlayer("bob")).Return("match-1", nil).Once()
	creator.On("StartMatch", "match-1").Return(nil).Once()

	clock.Advance(40 * time.Second)
	res = q.Sweep(context.Background())
	assert.Equal(t, 1, res.Matched)
	creator.AssertExpectations(t)
}

func TestPairUsesNarrowerThreshold(t *testing.T) {
	q, creator, _, clock := newTestQueue(t)
	q.Enqueue("alice", 1000)
	clock.Advance(35 * time.Second)
	q.Enqueue("bob", 1250)
	clock.Advance(5 * time.Second)

	// alice's threshold is 300 but bob has only waited 5s
	res := q.Sweep(context.Background())

	assert.Equal(t, 0, res.Matched)
	assert.Equal(t, 2, q.Status().Depth)
	creator.AssertNotCalled(t, "CreateMatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepPicksEarliestCompatiblePartner(t *testing.T) {
	q, creator, _, clock := newTestQueue(t)
	for _, p := range []struct {
		id  string
		elo int
	}{{"a", 1000}, {"b", 1500}, {"c", 1050}, {"d", 1020}} {
		q.Enqueue(p.id, p.elo)
		clock.Advance(time.Second)
	}

	creator.On("CreateMatch", mock.Anything, byPlayer("a"), byPlayer("c")).Return("match-1", nil).Once()
	creator.On("StartMatch", "match-1").Return(nil).Once()

	res := q.Sweep(context.Background())

	assert.Equal(t, 1, res.Matched)
	creator.AssertExpectations(t)
	_, err := q.Position("b")
	assert.NoError(t, err)
	_, err = q.Position("d")
	assert.NoError(t, err)
}

func TestNoEntryIsPairedTwice(t *testing.T) {
	q, creator, notifier, clock := newTestQueue(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.Enqueue(id, 1000)
		clock.Advance(time.Millisecond)
	}

	creator.On("CreateMatch", mock.Anything, mock.Anything, mock.Anything).Return("m", nil)
	creator.On("StartMatch", "m").Return(nil)

	res := q.Sweep(context.Background())

	assert.Equal(t, 2, res.Matched)
	seen := map[string]int{}
	for _, f := range notifier.found {
		seen[f.player]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "player %s notified more than once", id)
	}
	pos, err := q.Position("e")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestEntriesExpireAfterMaxWait(t *testing.T) {
	q, creator, notifier, clock := newTestQueue(t)
	q.Enqueue("alice", 1000)
	clock.Advance(100 * time.Second)
	q.Enqueue("bob", 2000)
	clock.Advance(80 * time.Second)

	res := q.Sweep(context.Background())

	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, []string{"alice"}, notifier.timedOut)
	assert.Equal(t, 1, q.Status().Depth)
	creator.AssertNotCalled(t, "CreateMatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestFailedCreationRestoresEntries(t *testing.T) {
	q, creator, notifier, clock := newTestQueue(t)
	alice, _ := q.Enqueue("alice", 1000)
	clock.Advance(time.Second)
	q.Enqueue("bob", 1000)
	clock.Advance(time.Second)
	q.Enqueue("carol", 3000)

	creator.On("CreateMatch", mock.Anything, byPlayer("alice"), byPlayer("bob")).Return("", errors.New("redis down")).Once()

	res := q.Sweep(context.Background())

	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, notifier.found)
	assert.Equal(t, 3, q.Status().Depth)
	pos, err := q.Position("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 2*time.Second, q.Status().OldestWait)
	assert.Equal(t, alice.RequestedAt, clock.Now().Add(-2*time.Second))

	creator.On("CreateMatch", mock.Anything, byPlayer("alice"), byPlayer("bob")).Return("match-2", nil).Once()
	creator.On("StartMatch", "match-2").Return(nil).Once()
	res = q.Sweep(context.Background())
	assert.Equal(t, 1, res.Matched)
	creator.AssertExpectations(t)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		QueueMaxWait:               90 * time.Second,
		QueueBaseThreshold:         50,
		QueueThresholdStep:         25,
		QueueThresholdStepInterval: 5 * time.Second,
		QueueThresholdCap:          200,
	}

	s := SettingsFromConfig(cfg)

	assert.Equal(t, 90*time.Second, s.MaxWait)
	assert.Equal(t, 50, s.Thresholds.At(0))
	assert.Equal(t, 100, s.Thresholds.At(10*time.Second))
	assert.Equal(t, 200, s.Thresholds.At(time.Hour))
}
