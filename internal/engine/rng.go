package engine

import "math/rand/v2"

// newRand returns the deterministic source for the step that produces
// sequence number seq. Shuffles at match creation use seq 0.
func newRand(seed, seq int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seq)))
}

func shuffle(r *rand.Rand, refs []string) {
	r.Shuffle(len(refs), func(i, j int) {
		refs[i], refs[j] = refs[j], refs[i]
	})
}
