package util

import "time"

type Clock interface {
	Now() time.Time
}

// UTCClock is the production clock, always reporting UTC.
type UTCClock struct{}

func (c *UTCClock) Now() time.Time { return time.Now().UTC() }

// DummyClock reports a fixed instant, for deterministic tests.
type DummyClock struct {
	T time.Time
}

func (c *DummyClock) Now() time.Time { return c.T }
