package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new jobs. CreateJobs is atomic: either every
// job is stored or none is.
type EnqueuerRepository interface {
	CreateJobs(ctx context.Context, jobs ...*Job) error
}

// BatchItem is one job of an EnqueueBatch call.
type BatchItem struct {
	Name    string
	Payload any
	Options []EnqueueOption
}

// Enqueuer turns payloads into one-time jobs.
type Enqueuer struct {
	repo               EnqueuerRepository
	defaultQueue       string
	defaultPriority    Priority
	defaultMaxAttempts int
	now                func() time.Time
}

// NewEnqueuer creates a new Enqueuer.
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:       DefaultQueueName,
		defaultPriority:    PriorityDefault,
		defaultMaxAttempts: DefaultMaxAttempts,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:               repo,
		defaultQueue:       options.defaultQueue,
		defaultPriority:    options.defaultPriority,
		defaultMaxAttempts: options.defaultMaxAttempts,
		now:                options.now,
	}, nil
}

// Enqueue stores a single job. An empty name falls back to the payload's
// qualified type name.
func (e *Enqueuer) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	job, err := e.buildJob(name, payload, opts)
	if err != nil {
		return uuid.Nil, err
	}
	if err := e.repo.CreateJobs(ctx, job); err != nil {
		return uuid.Nil, errors.Join(ErrJobCreate, fmt.Errorf("job %q in queue %q: %w", job.Name, job.Queue, err))
	}
	return job.ID, nil
}

// EnqueueBatch stores all items in one repository call. A single invalid
// item rejects the whole batch.
func (e *Enqueuer) EnqueueBatch(ctx context.Context, items []BatchItem) ([]uuid.UUID, error) {
	if len(items) == 0 {
		return nil, ErrNoItemsToEnqueue
	}

	jobs := make([]*Job, 0, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for i, item := range items {
		job, err := e.buildJob(item.Name, item.Payload, item.Options)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}

	if err := e.repo.CreateJobs(ctx, jobs...); err != nil {
		return nil, errors.Join(ErrJobCreate, fmt.Errorf("batch of %d jobs: %w", len(jobs), err))
	}
	return ids, nil
}

func (e *Enqueuer) buildJob(name string, payload any, opts []EnqueueOption) (*Job, error) {
	if payload == nil {
		return nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:       e.defaultQueue,
		priority:    e.defaultPriority,
		maxAttempts: e.defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(options)
	}
	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
	}

	if name == "" {
		name = jobName(payload)
	}

	now := e.now()
	scheduledAt := now
	switch {
	case options.scheduledAt != nil:
		scheduledAt = *options.scheduledAt
	case options.delay > 0:
		scheduledAt = now.Add(options.delay)
	}

	return &Job{
		ID:          uuid.New(),
		Queue:       options.queue,
		Kind:        KindOneTime,
		Name:        name,
		Payload:     raw,
		Status:      StatusPending,
		Priority:    options.priority,
		MaxAttempts: options.maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}, nil
}
