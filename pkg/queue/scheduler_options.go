package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// WithCheckInterval sets how often the scheduler looks for due jobs.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// PeriodicOption configures one periodic job.
type PeriodicOption func(*periodicOptions)

type periodicOptions struct {
	queue       string
	priority    Priority
	maxAttempts int
}

// WithPeriodicQueue sets the queue of the periodic job.
func WithPeriodicQueue(queue string) PeriodicOption {
	return func(o *periodicOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPeriodicPriority sets the priority of the periodic job.
func WithPeriodicPriority(p Priority) PeriodicOption {
	return func(o *periodicOptions) {
		if p.Valid() {
			o.priority = p
		}
	}
}

// WithPeriodicMaxAttempts sets the attempt budget of each instance (1-20).
func WithPeriodicMaxAttempts(n int) PeriodicOption {
	return func(o *periodicOptions) {
		if n >= 1 && n <= 20 {
			o.maxAttempts = n
		}
	}
}
