package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// SchedulerRepository is the storage side of periodic scheduling.
type SchedulerRepository interface {
	CreateJobs(ctx context.Context, jobs ...*Job) error
	// PendingJobByName returns ErrJobNotFound when no pending job has name.
	PendingJobByName(ctx context.Context, name string) (*Job, error)
}

// Scheduler materializes periodic jobs. Each registered job has at most one
// pending instance at a time, so several scheduler replicas do not pile up
// duplicates.
type Scheduler struct {
	repo     SchedulerRepository
	jobs     map[string]*periodicJob
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type periodicJob struct {
	name        string
	schedule    Schedule
	queue       string
	priority    Priority
	maxAttempts int
	lastRun     *time.Time
}

// NewScheduler creates a new periodic job scheduler.
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:     repo,
		jobs:     make(map[string]*periodicJob),
		interval: options.checkInterval,
		now:      options.now,
		logger:   options.logger.With(logger.Component("queue.scheduler")),
	}, nil
}

// AddPeriodic registers a periodic job. Its handler is registered on the
// worker under the same name.
func (s *Scheduler) AddPeriodic(name string, schedule Schedule, opts ...PeriodicOption) error {
	o := &periodicOptions{
		queue:       DefaultQueueName,
		priority:    PriorityDefault,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}
	s.jobs[name] = &periodicJob{
		name:        name,
		schedule:    schedule,
		queue:       o.queue,
		priority:    o.priority,
		maxAttempts: o.maxAttempts,
	}

	s.logger.Info("registered periodic job",
		logger.JobName(name),
		slog.String("schedule", schedule.String()),
	)
	return nil
}

// Remove unregisters a periodic job. Already created instances stay queued.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start checks due jobs immediately and then every check interval until ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	if n == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Run returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		return s.Start(ctx)
	}
}

// Check creates the next instance of every job that is due.
func (s *Scheduler) Check(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]*periodicJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	now := s.now()
	for _, j := range jobs {
		if err := s.scheduleIfDue(ctx, j, now); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelError, "failed to schedule periodic job",
				logger.JobName(j.name),
				logger.Error(err),
			)
		}
	}
}

func (s *Scheduler) scheduleIfDue(ctx context.Context, j *periodicJob, now time.Time) error {
	s.mu.Lock()
	last := j.lastRun
	s.mu.Unlock()

	var next time.Time
	if last == nil {
		next = j.schedule.Next(now)
	} else {
		next = j.schedule.Next(*last)
		if next.After(now) {
			return nil
		}
		// catch up without replaying every missed run
		for !next.After(now) {
			candidate := j.schedule.Next(next)
			if candidate.After(now) {
				break
			}
			next = candidate
		}
	}

	existing, err := s.repo.PendingJobByName(ctx, j.name)
	switch {
	case err == nil && existing != nil:
		s.setLastRun(j, existing.ScheduledAt)
		return nil
	case err != nil && !errors.Is(err, ErrJobNotFound):
		return err
	}

	if err := s.repo.CreateJobs(ctx, &Job{
		ID:          uuid.New(),
		Queue:       j.queue,
		Kind:        KindPeriodic,
		Name:        j.name,
		Status:      StatusPending,
		Priority:    j.priority,
		MaxAttempts: j.maxAttempts,
		ScheduledAt: next,
		CreatedAt:   now,
	}); err != nil {
		return err
	}
	s.setLastRun(j, next)

	s.logger.LogAttrs(ctx, slog.LevelDebug, "periodic job scheduled",
		logger.JobName(j.name),
		slog.Time("scheduled_for", next),
	)
	return nil
}

func (s *Scheduler) setLastRun(j *periodicJob, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.lastRun = &at
}
