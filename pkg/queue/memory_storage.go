package queue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps jobs in process. It implements every repository of
// this package and suits tests and single-process development.
type MemoryStorage struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	dead []DeadJob
	now  func() time.Time
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStorage creates an empty in-memory job store.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		jobs: make(map[uuid.UUID]*Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJobs stores jobs atomically.
func (s *MemoryStorage) CreateJobs(_ context.Context, jobs ...*Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		if job == nil {
			return fmt.Errorf("%w: nil job", ErrStorageFailed)
		}
		if _, exists := s.jobs[job.ID]; exists {
			return fmt.Errorf("%w: job %s already exists", ErrStorageFailed, job.ID)
		}
	}
	for _, job := range jobs {
		cp := cloneJob(job)
		s.jobs[job.ID] = &cp
	}
	return nil
}

// ClaimJob picks the highest-priority due job, the earliest scheduled on
// ties. Jobs whose lock expired are claimable again.
func (s *MemoryStorage) ClaimJob(_ context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *Job
	for _, job := range s.jobs {
		if !slices.Contains(queues, job.Queue) || job.ScheduledAt.After(now) {
			continue
		}
		switch job.Status {
		case StatusPending:
		case StatusProcessing:
			if job.LockedUntil == nil || job.LockedUntil.After(now) {
				continue
			}
		default:
			continue
		}
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.ScheduledAt.Before(best.ScheduledAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockedUntil := now.Add(lockFor)
	best.Status = StatusProcessing
	best.Attempts++
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID

	cp := cloneJob(best)
	return &cp, nil
}

func (s *MemoryStorage) CompleteJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.processing(id)
	if err != nil {
		return err
	}
	now := s.now()
	job.Status = StatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

func (s *MemoryStorage) RetryJob(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.processing(id)
	if err != nil {
		return err
	}
	job.Status = StatusPending
	job.LastError = errMsg
	job.ScheduledAt = retryAt
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

func (s *MemoryStorage) MoveToDLQ(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s.dead = append(s.dead, DeadJob{
		ID:       uuid.New(),
		JobID:    job.ID,
		Queue:    job.Queue,
		Kind:     job.Kind,
		Name:     job.Name,
		Payload:  slices.Clone(job.Payload),
		Priority: job.Priority,
		Attempts: job.Attempts,
		Error:    errMsg,
		FailedAt: s.now(),
	})
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStorage) ExtendLock(_ context.Context, id uuid.UUID, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.processing(id)
	if err != nil {
		return err
	}
	until := s.now().Add(d)
	job.LockedUntil = &until
	return nil
}

// PendingJobByName returns the earliest pending job with the given name.
func (s *MemoryStorage) PendingJobByName(_ context.Context, name string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *Job
	for _, job := range s.jobs {
		if job.Name != name || job.Status != StatusPending {
			continue
		}
		if found == nil || job.ScheduledAt.Before(found.ScheduledAt) {
			found = job
		}
	}
	if found == nil {
		return nil, ErrJobNotFound
	}
	cp := cloneJob(found)
	return &cp, nil
}

// Jobs returns a snapshot of live jobs ordered by priority, then schedule.
func (s *MemoryStorage) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	slices.SortFunc(out, func(a, b Job) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})
	return out
}

// DeadJobs returns a snapshot of the dead-letter queue.
func (s *MemoryStorage) DeadJobs() []DeadJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.dead)
}

func (s *MemoryStorage) processing(id uuid.UUID) (*Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrJobNotProcessing, id)
	}
	return job, nil
}

func cloneJob(j *Job) Job {
	cp := *j
	cp.Payload = slices.Clone(j.Payload)
	if j.LockedUntil != nil {
		t := *j.LockedUntil
		cp.LockedUntil = &t
	}
	if j.LockedBy != nil {
		id := *j.LockedBy
		cp.LockedBy = &id
	}
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		cp.ProcessedAt = &t
	}
	return cp
}
