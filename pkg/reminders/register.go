package reminders

import "github.com/dmitrymomot/notifykit/pkg/queue"

type (
	// HandlerRegistry is satisfied by *queue.Worker.
	HandlerRegistry interface {
		RegisterHandlers(handlers ...queue.Handler)
	}

	// PeriodicRegistry is satisfied by *queue.Scheduler.
	PeriodicRegistry interface {
		AddPeriodic(name string, schedule queue.Schedule, opts ...queue.PeriodicOption) error
	}
)

// Handlers returns one periodic handler per run.
func (r *Runner) Handlers() []queue.Handler {
	return []queue.Handler{
		queue.NewPeriodicHandler(JobExpiringSoon, r.ExpiringSoon),
		queue.NewPeriodicHandler(JobExpiringToday, r.ExpiringToday),
		queue.NewPeriodicHandler(JobExpired, r.Expired),
		queue.NewPeriodicHandler(JobWeeklyDigest, r.WeeklyDigest),
		queue.NewPeriodicHandler(JobExpireNotifications, r.ExpireNotifications),
	}
}

// Schedules returns the schedule of every run in the configured timezone.
func (r *Runner) Schedules() map[string]queue.Schedule {
	in := func(s queue.Schedule) queue.Schedule { return queue.In(r.loc, s) }
	return map[string]queue.Schedule{
		JobExpiringSoon:        in(queue.DailyAt(r.cfg.DailyHour, 0)),
		JobExpiringToday:       in(queue.HourlyAt(r.cfg.HourlyMinute)),
		JobExpired:             in(queue.DailyAt(r.cfg.DailyHour, 15)),
		JobWeeklyDigest:        in(queue.WeeklyOn(r.cfg.DigestWeekday, r.cfg.DigestHour, 0)),
		JobExpireNotifications: in(queue.HourlyAt(r.cfg.ExpireSweepMinute)),
	}
}

// Register adds the handlers to w and the periodic jobs to s.
func (r *Runner) Register(s PeriodicRegistry, w HandlerRegistry) error {
	w.RegisterHandlers(r.Handlers()...)
	for _, name := range []string{JobExpiringSoon, JobExpiringToday, JobExpired, JobWeeklyDigest, JobExpireNotifications} {
		priority := queue.PriorityMedium
		if name == JobExpiringToday {
			priority = queue.PriorityHigh
		}
		opts := []queue.PeriodicOption{queue.WithPeriodicPriority(priority)}
		if r.cfg.Queue != "" {
			opts = append(opts, queue.WithPeriodicQueue(r.cfg.Queue))
		}
		if err := s.AddPeriodic(name, r.Schedules()[name], opts...); err != nil {
			return err
		}
	}
	return nil
}
