package channel

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnection delays: min(Max, Base*2^attempt) plus a
// uniform random jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration

	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultBackoff matches the agent service's expected reconnect cadence.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: 500 * time.Millisecond,
	}
}

// Delay returns the wait before reconnection attempt number attempt (zero based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}

	if b.Jitter > 0 {
		r := b.Rand
		if r == nil {
			r = rand.Float64
		}
		d += time.Duration(r() * float64(b.Jitter))
	}
	return d
}
