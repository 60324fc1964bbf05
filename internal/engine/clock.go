package engine

import "time"

// Clock supplies wall-clock time for received timestamps and latency
// metrics. Implemented by SystemClock (production) and by test clocks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}
