// Package ratelimit provides a sliding-window rate limiter that throttles
// calls to external market-data APIs. Exhausting the budget delays the
// caller; calls are never dropped or rejected.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Executor limits wrapped operations to at most maxCalls starts within any
// sliding window of length period. The mutex guards the check-and-record
// step so the window count stays accurate if callers ever become concurrent;
// the lifecycle itself issues calls from a single flow.
type Executor struct {
	maxCalls int
	period   time.Duration

	mu    sync.Mutex
	calls []time.Time // start times inside the current window, oldest first
}

// New creates an Executor allowing maxCalls operation starts per period.
// maxCalls values below 1 are clamped to 1.
func New(maxCalls int, period time.Duration) *Executor {
	if maxCalls < 1 {
		maxCalls = 1
	}
	return &Executor{
		maxCalls: maxCalls,
		period:   period,
	}
}

// Wait blocks until a call may start, or until the context is cancelled.
// When the window is full it sleeps exactly until the oldest recorded start
// ages out, then records the new start.
func (e *Executor) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		now := time.Now()
		e.trim(now)
		if len(e.calls) < e.maxCalls {
			e.calls = append(e.calls, now)
			e.mu.Unlock()
			return nil
		}
		wait := e.period - now.Sub(e.calls[0])
		e.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Do runs fn after acquiring a rate-limit slot.
func (e *Executor) Do(ctx context.Context, fn func() error) error {
	if err := e.Wait(ctx); err != nil {
		return err
	}
	return fn()
}

// trim drops call starts that have aged out of the window. Caller holds mu.
func (e *Executor) trim(now time.Time) {
	i := 0
	for i < len(e.calls) && now.Sub(e.calls[i]) > e.period {
		i++
	}
	if i > 0 {
		e.calls = append(e.calls[:0], e.calls[i:]...)
	}
}
