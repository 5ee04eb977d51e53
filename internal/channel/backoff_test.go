package channel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/coachlink/internal/channel"
)

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()

	b := channel.Backoff{Base: time.Second, Max: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{60, 30 * time.Second},
		{10000, 30 * time.Second},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, b.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestBackoff_NonDecreasingUpToCap(t *testing.T) {
	t.Parallel()

	b := channel.DefaultBackoff()
	b.Rand = func() float64 { return 0.5 }

	prev := time.Duration(0)
	for attempt := range 20 {
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, b.Max+b.Jitter)
		prev = d
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	t.Parallel()

	b := channel.DefaultBackoff()

	for range 200 {
		d := b.Delay(3)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.Less(t, d, 8*time.Second+b.Jitter)
	}

	b.Rand = func() float64 { return 0.999 }
	assert.Equal(t, 8*time.Second+time.Duration(0.999*float64(b.Jitter)), b.Delay(3))
}
