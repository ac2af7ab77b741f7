package queue

import "time"

// Thresholds describe how far apart two ratings may be, widening the longer
// a player has waited.
type Thresholds struct {
	Base         int
	Step         int
	StepInterval time.Duration
	Cap          int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Base: 100, Step: 50, StepInterval: 10 * time.Second, Cap: 400}
}

// At returns min(Base + Step*floor(wait/StepInterval), Cap).
func (t Thresholds) At(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	threshold := t.Base
	if t.StepInterval > 0 {
		threshold += t.Step * int(wait/t.StepInterval)
	}
	if t.Cap > 0 && threshold > t.Cap {
		threshold = t.Cap
	}
	return threshold
}

// ForPair is the threshold both entries agree on: the narrower of the two.
func (t Thresholds) ForPair(a, b Entry, now time.Time) int {
	return min(t.At(a.Wait(now)), t.At(b.Wait(now)))
}
