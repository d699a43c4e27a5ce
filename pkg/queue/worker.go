package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// WorkerRepository is the storage side of job execution.
type WorkerRepository interface {
	// ClaimJob locks the highest-priority due job of queues and increments
	// its attempt counter. It returns ErrNoJobToClaim when nothing is due.
	ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Job, error)

	CompleteJob(ctx context.Context, id uuid.UUID) error

	// RetryJob releases the lock and reschedules the job for retryAt.
	RetryJob(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error

	// MoveToDLQ removes the job from the live table into the dead-letter table.
	MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error

	ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error
}

// DeadLetterHook is called after a job has been moved to the dead-letter queue.
type DeadLetterHook func(ctx context.Context, job Job, err error)

// Worker claims jobs and runs their handlers.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	backoff      BackoffFunc
	onDead       []DeadLetterHook
	now          func() time.Time
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new job worker.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:            []string{DefaultQueueName},
		pullInterval:      time.Second,
		lockTimeout:       5 * time.Minute,
		maxConcurrentJobs: 1,
		backoff:           ExponentialBackoff,
		now:               time.Now,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentJobs),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		backoff:      options.backoff,
		onDead:       options.onDead,
		now:          options.now,
		logger:       options.logger.With(logger.Component("queue.worker")),
		ctx:          context.Background(),
	}, nil
}

// RegisterHandlers registers handlers by name. A later handler with the same
// name replaces the earlier one.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.LogAttrs(ctx, slog.LevelInfo, "worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		logger.Count("max_concurrent", cap(w.sem)),
	)
	return nil
}

// Stop cancels polling and waits for running handlers to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()
					w.drain()
				}()
			default:
			}
		}
	}
}

// drain processes jobs until none is due or the worker stops.
func (w *Worker) drain() {
	for w.ctx.Err() == nil {
		processed, err := w.ProcessNext(w.ctx)
		if err != nil && !errors.Is(err, ErrHandlerNotFound) {
			w.logger.LogAttrs(w.ctx, slog.LevelError, "failed to process job",
				slog.String("worker_id", w.workerID.String()),
				logger.Error(err),
			)
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims and executes one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimJob(ctx, w.workerID, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoJobToClaim) || (err == nil && job == nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return true, w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, ok := w.handlers[job.Name]
	w.mu.RUnlock()

	if !ok {
		// retrying cannot help until a handler is deployed
		err := fmt.Errorf("%w: %s", ErrHandlerNotFound, job.Name)
		if dlqErr := w.deadLetter(ctx, job, err); dlqErr != nil {
			return dlqErr
		}
		return err
	}

	start := time.Now()
	execErr := w.execute(ctx, handler, job)
	duration := time.Since(start)

	if execErr != nil {
		return w.fail(ctx, job, execErr, duration)
	}

	if err := w.repo.CompleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	w.logger.LogAttrs(ctx, slog.LevelDebug, "job completed",
		logger.JobID(job.ID),
		logger.JobName(job.Name),
		logger.Attempt(job.Attempts),
		logger.Duration(duration),
	)
	return nil
}

// execute runs the handler detached from worker cancellation so a shutdown
// lets in-flight jobs finish within the lock timeout.
func (w *Worker) execute(ctx context.Context, handler Handler, job *Job) (err error) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.lockTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler %s: %v", job.Name, r)
		}
	}()

	return handler.Handle(withJob(hctx, job), job.Payload)
}

func (w *Worker) fail(ctx context.Context, job *Job, execErr error, duration time.Duration) error {
	level := slog.LevelWarn
	if job.Exhausted() || IsPermanent(execErr) {
		level = slog.LevelError
	}
	w.logger.LogAttrs(ctx, level, "job failed",
		logger.JobID(job.ID),
		logger.JobName(job.Name),
		logger.Attempt(job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		logger.Duration(duration),
		logger.Error(execErr),
	)

	if job.Exhausted() || IsPermanent(execErr) {
		return w.deadLetter(ctx, job, execErr)
	}

	retryAt := w.now().Add(w.backoff(job.Attempts))
	if err := w.repo.RetryJob(ctx, job.ID, execErr.Error(), retryAt); err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, job *Job, cause error) error {
	if err := w.repo.MoveToDLQ(ctx, job.ID, cause.Error()); err != nil {
		return fmt.Errorf("failed to move job %s to dead letter queue: %w", job.ID, err)
	}

	w.logger.LogAttrs(ctx, slog.LevelWarn, "job moved to dead letter queue",
		logger.JobID(job.ID),
		logger.JobName(job.Name),
		logger.Attempt(job.Attempts),
	)

	dead := *job
	dead.Status = StatusFailed
	dead.LastError = cause.Error()
	for _, hook := range w.onDead {
		w.runHook(ctx, hook, dead, cause)
	}
	return nil
}

func (w *Worker) runHook(ctx context.Context, hook DeadLetterHook, job Job, cause error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.LogAttrs(ctx, slog.LevelError, "dead letter hook panicked",
				logger.JobID(job.ID),
				slog.Any("panic", r),
			)
		}
	}()
	hook(context.WithoutCancel(ctx), job, cause)
}

// ExtendLock extends the lock of a long-running job.
func (w *Worker) ExtendLock(ctx context.Context, id uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, id, extension)
}

// WorkerInfo returns the worker id, host name and process id.
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
