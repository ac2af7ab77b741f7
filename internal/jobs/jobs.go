// Package jobs runs the periodic background work of the battle server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/nexuscards/battle/internal/queue"
	"github.com/rs/zerolog/log"
)

// Sweeper pairs waiting players.
type Sweeper interface {
	Sweep(ctx context.Context) queue.SweepResult
}

// Reaper drops finished matches.
type Reaper interface {
	Reap(retention time.Duration) int
}

type Settings struct {
	SweepInterval  time.Duration
	ReapInterval   time.Duration
	MatchRetention time.Duration
}

// Scheduler owns the gocron scheduler running the matchmaker and the
// match reaper.
type Scheduler struct {
	sched gocron.Scheduler
}

func NewScheduler(sweeper Sweeper, reaper Reaper, settings Settings) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	// one sweep at a time; a slow sweep delays the next instead of overlapping
	_, err = sched.NewJob(
		gocron.DurationJob(settings.SweepInterval),
		gocron.NewTask(func(ctx context.Context) {
			res := sweeper.Sweep(ctx)
			if res.Matched > 0 || res.Expired > 0 || res.Failed > 0 {
				log.Info().
					Int("matched", res.Matched).
					Int("expired", res.Expired).
					Int("failed", res.Failed).
					Msg("[MATCHMAKER] Sweep complete")
			}
		}),
		gocron.WithName("queue-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule queue sweep: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(settings.ReapInterval),
		gocron.NewTask(func() {
			if n := reaper.Reap(settings.MatchRetention); n > 0 {
				log.Info().Int("reaped", n).Msg("[REAPER] Finished matches released")
			}
		}),
		gocron.WithName("match-reaper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule match reaper: %w", err)
	}

	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	log.Info().Msg("[JOBS] Scheduler started")
}

func (s *Scheduler) Shutdown() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	log.Info().Msg("[JOBS] Scheduler stopped")
	return nil
}
