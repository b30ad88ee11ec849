package dispatch

import "time"

// Backoff computes the wait before the next send attempt: Base doubled per
// failed attempt, capped at Max. Deterministic so retry schedules are
// strictly increasing and testable.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the backoff after the attempt-th failure (1-based). Attempts
// at or below zero get the base delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}
