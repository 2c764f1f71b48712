package engine

import (
	"context"
	"time"
)

// Sleeper waits for d or until ctx is done, whichever comes first. It
// returns ctx.Err() when interrupted.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Throttle spaces out platform-mutating calls with a fixed delay.
//
// This is a fixed-delay throttle, not a rate limiter: every Wait blocks for
// the full delay regardless of how long the preceding call took.
type Throttle struct {
	delay time.Duration
	sleep Sleeper
	waits int
}

// NewThrottle creates a throttle that pauses for delay on every Wait.
func NewThrottle(delay time.Duration, sleep Sleeper) *Throttle {
	if sleep == nil {
		sleep = Sleep
	}
	return &Throttle{delay: delay, sleep: sleep}
}

// Wait blocks for the configured delay. It returns early with ctx.Err()
// when the context is cancelled, so shutdown never waits out a delay.
func (t *Throttle) Wait(ctx context.Context) error {
	t.waits++
	return t.sleep(ctx, t.delay)
}

// Waits returns how many times Wait was called.
// Used for logging and diagnostics.
func (t *Throttle) Waits() int {
	return t.waits
}

// Delay returns the configured delay.
func (t *Throttle) Delay() time.Duration {
	return t.delay
}
