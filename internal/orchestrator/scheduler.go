package orchestrator

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback if it has not fired yet.
	// Reports whether the cancellation happened.
	Stop() bool
}

// Scheduler is the clock the orchestrator schedules retry backoff on.
// It exists so tests can fast-forward retries deterministically instead
// of sleeping through real backoff windows.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// TimerScheduler is the production Scheduler backed by the runtime timer
// wheel. A pending retry does not occupy a goroutine until it fires.
type TimerScheduler struct{}

// NewTimerScheduler creates the production scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

// Now returns the current wall-clock time.
func (s *TimerScheduler) Now() time.Time {
	return time.Now()
}

// AfterFunc runs fn on its own goroutine after d has elapsed.
func (s *TimerScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
