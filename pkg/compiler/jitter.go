package compiler

import (
	"hash/fnv"
	"math/rand"

	"github.com/openconverge/openconverge/pkg/engine"
)

// Jitter produces deterministic per-host minute offsets used to spread
// periodic agent runs across a fleet. The host's fully-qualified name seeds a
// local generator, so the same host always computes the same offsets across
// runs while different hosts disperse across the interval. This is a
// load-distribution mechanism, not a security-relevant random source.
type Jitter struct {
	seed int64
}

// NewJitter creates a jitter generator seeded from the host name.
func NewJitter(fqdn string) *Jitter {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fqdn))
	return &Jitter{seed: int64(h.Sum64())}
}

// Offsets returns the two minute offsets for an interval bound of n minutes.
// Both draws are independent and fall in [0, n); the second offset is shifted
// into the second half-hour. Re-running compilation never thrashes the
// schedule: the pair is stable for a given host name and interval.
func (j *Jitter) Offsets(n int) (int, int, error) {
	if n <= 0 {
		return 0, 0, engine.NewCompileError("run interval must be positive", nil).
			WithCode(engine.ErrCodeInvalidParameters)
	}

	r := rand.New(rand.NewSource(j.seed))
	first := r.Intn(n)
	second := r.Intn(n) + 30
	return first, second, nil
}
