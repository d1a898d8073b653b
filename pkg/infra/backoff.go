package infra

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff paces the relay loop after infrastructure failures (broker down, database unreachable).
// It is unrelated to the per-row delivery schedule of the outbox, which is persisted.
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

type BackoffOption func(*Backoff)

// WithJitter sets the +/- jitter ratio applied to each delay. Zero disables jitter.
func WithJitter(ratio float64) BackoffOption {
	return func(b *Backoff) {
		if ratio >= 0 && ratio < 1 {
			b.jitter = ratio
		}
	}
}

func NewBackoff(min, max time.Duration, mult float64, opts ...BackoffOption) *Backoff {
	b := &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		jitter:     0.2,
		current:    min,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	wait := b.current
	if b.jitter > 0 {
		factor := rand.Float64()*2*b.jitter - b.jitter
		wait = max(b.current+time.Duration(factor*float64(b.current)), b.minDelay)
	}

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
