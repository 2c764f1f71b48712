package engine

import "time"

// Clock supplies wall-clock time for deadlines and reports.
//
// Thread-safety: implementations must be safe for concurrent use, since both
// scheduled passes read the same clock.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock in UTC.
type WallClock struct{}

// Now returns the current UTC time.
func (WallClock) Now() time.Time {
	return time.Now().UTC()
}
