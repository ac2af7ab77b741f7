package match

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nexuscards/battle/internal/identity"
	"github.com/rs/zerolog/log"
)

const DefaultKFactor = 32

// EloDeltas returns the rating changes for both players given seat 0's
// score (1 win, 0.5 draw, 0 loss).
func EloDeltas(ratingA, ratingB int, scoreA, k float64) (int, int) {
	expectedA := 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
	expectedB := 1 - expectedA
	deltaA := math.Round(k * (scoreA - expectedA))
	deltaB := math.Round(k * ((1 - scoreA) - expectedB))
	return int(deltaA), int(deltaB)
}

// RatingService accepts rating deltas for finished matches.
type RatingService interface {
	ReportMatchResult(ctx context.Context, playerID, matchID string, delta int) error
}

// EloReporter pushes rating deltas to the identity service in the
// background, retrying with exponential backoff.
type EloReporter struct {
	ratings   RatingService
	attempts  int
	baseDelay time.Duration
	timeout   time.Duration
	clock     clockwork.Clock
	wg        sync.WaitGroup
}

func NewEloReporter(ratings RatingService, attempts int, baseDelay time.Duration, clock clockwork.Clock) *EloReporter {
	if attempts < 1 {
		attempts = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EloReporter{
		ratings:   ratings,
		attempts:  attempts,
		baseDelay: baseDelay,
		timeout:   10 * time.Second,
		clock:     clock,
	}
}

// Report starts delivery of both players' deltas and returns immediately.
func (r *EloReporter) Report(res Result) {
	if !res.Rated() {
		log.Warn().Str("match_id", res.MatchID).Msg("[ELO] Skipping rating update for incident match")
		return
	}
	for i, playerID := range res.Players {
		r.wg.Add(1)
		go func(playerID string, delta int) {
			defer r.wg.Done()
			r.deliver(playerID, res.MatchID, delta)
		}(playerID, res.EloDelta[i])
	}
}

// Wait blocks until every pending report has succeeded or given up.
func (r *EloReporter) Wait() {
	r.wg.Wait()
}

func (r *EloReporter) deliver(playerID, matchID string, delta int) {
	delay := r.baseDelay
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.ratings.ReportMatchResult(ctx, playerID, matchID, delta)
		cancel()
		if err == nil {
			log.Info().Str("match_id", matchID).Str("player_id", playerID).Int("delta", delta).Msg("[ELO] Rating delta reported")
			return
		}

		logger := log.With().Err(err).Str("match_id", matchID).Str("player_id", playerID).Int("attempt", attempt).Logger()
		if !retryable(err) || attempt >= r.attempts {
			logger.Error().Int("delta", delta).Msg("[ELO] Giving up on rating update")
			return
		}
		logger.Warn().Dur("backoff", delay).Msg("[ELO] Rating update failed, retrying")
		r.clock.Sleep(delay)
		delay *= 2
	}
}

func retryable(err error) bool {
	if errors.Is(err, identity.ErrPlayerNotFound) {
		return false
	}
	var se *identity.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
