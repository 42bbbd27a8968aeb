package engine

import "time"

// CancelFunc cancels a scheduled callback. It reports false if the callback
// already fired or was already cancelled.
type CancelFunc func() bool

// Scheduler arms one-shot cancellable timers. The batching engine arms a
// timer when a batch is created and cancels it on an early size-triggered
// flush; the delivery manager uses the same abstraction for retry backoff.
// Tests substitute a manual implementation.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelFunc
}

type timerScheduler struct{}

// NewScheduler returns the wall-clock Scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(delay, fn)
	return t.Stop
}
