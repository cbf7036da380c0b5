package tasks

import (
	"math"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"
)

// jitterFraction spreads retries of tasks that failed together so they
// do not all land on the same tick again.
const jitterFraction = 0.2

// Backoff computes retry delays: base doubled per attempt, capped at max,
// with a random factor of up to ±20% applied after the cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// rand returns a value in [0,1); replaceable in tests
	rand func() float64
}

// NewBackoff creates an exponential backoff policy
func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max, rand: rand.Float64}
}

// Delay returns the wait before retry n (0-based)
func (b *Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}

	delay := float64(b.Base) * math.Pow(2, float64(n))
	if capped := float64(b.Max); delay > capped {
		delay = capped
	}

	// jitter in [-jitterFraction, +jitterFraction)
	factor := 1 + jitterFraction*(2*b.rand()-1)
	return time.Duration(delay * factor)
}

// RetryDelayFunc adapts the policy to asynq's retry hook signature
func (b *Backoff) RetryDelayFunc(n int, _ error, _ *asynq.Task) time.Duration {
	return b.Delay(n)
}
