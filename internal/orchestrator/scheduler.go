package orchestrator

import "time"

// Handle cancels a scheduled task.
type Handle interface {
	// Stop prevents the task from running. It reports whether the task was
	// still pending.
	Stop() bool
}

// Scheduler runs tasks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

// timeScheduler schedules with time.AfterFunc.
type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

// NewTimeScheduler returns a Scheduler backed by runtime timers.
func NewTimeScheduler() Scheduler { return timeScheduler{} }
