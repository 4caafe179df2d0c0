package sink

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/speedwagon-io/sensorsim/internal/config"
)

// backoff spaces out redeliveries of a batch with exponential growth and
// ±10% jitter, capped at max.
type backoff struct {
	attempts int
	initial  time.Duration
	max      time.Duration
	factor   float64
	jitter   float64
}

func newBackoff(cfg config.RetryConfig) backoff {
	b := backoff{
		attempts: cfg.MaxAttempts,
		initial:  cfg.InitialDelay,
		max:      cfg.MaxDelay,
		factor:   2,
		jitter:   0.1,
	}
	if b.attempts < 1 {
		b.attempts = 1
	}
	if b.max < b.initial {
		b.max = b.initial
	}
	return b
}

// delay is the pause before retry n (1-based).
func (b backoff) delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(b.initial) * math.Pow(b.factor, float64(n-1))
	d = math.Min(d, float64(b.max))
	d += d * b.jitter * (2*rand.Float64() - 1)
	return time.Duration(math.Min(d, float64(b.max)))
}

func (b backoff) wait(ctx context.Context, n int) error {
	t := time.NewTimer(b.delay(n))
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
