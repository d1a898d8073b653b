package outbox

import "time"

const (
	DefaultMaxAttempts = 5
	// MaxErrorLength caps last_error so failing rows do not grow without bound
	MaxErrorLength = 500
)

var DefaultSchedule = []time.Duration{
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

// Policy is the persisted retry schedule of a row. Attempt n (1-based) waits
// Schedule[n-1]; attempts past the schedule reuse the last interval.
type Policy struct {
	Schedule    []time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{Schedule: DefaultSchedule, MaxAttempts: DefaultMaxAttempts}
}

// Delay returns the wait after the given failed attempt
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Schedule) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Schedule) {
		return p.Schedule[len(p.Schedule)-1]
	}
	return p.Schedule[attempt-1]
}

// Exhausted reports whether a row with this many failed attempts is terminally failed
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Next returns when a row should be tried again after the given failed attempt
func (p Policy) Next(attempt int, now time.Time) time.Time {
	return now.Add(p.Delay(attempt))
}

// TruncateError shortens msg to MaxErrorLength runes
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorLength {
		return msg
	}
	return string(r[:MaxErrorLength])
}
