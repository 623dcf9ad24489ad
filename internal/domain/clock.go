package domain

import "github.com/jonboulle/clockwork"

// orRealClock lets constructors accept a nil clock. Production code passes
// nil; tests inject a fake for deterministic years and timestamps.
func orRealClock(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}
