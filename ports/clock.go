package ports

import "time"

// Clock supplies the current time. All time-based lifecycle decisions
// (challenge TTL, token expiry, rate windows, daily salt rotation) compare
// against a sampled now from a Clock so tests can pin time deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
