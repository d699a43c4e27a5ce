package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

type mockWorkerRepo struct {
	mock.Mock
}

func (m *mockWorkerRepo) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*queue.Job, error) {
	args := m.Called(ctx, workerID, queues, lockFor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Job), args.Error(1)
}

func (m *mockWorkerRepo) CompleteJob(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockWorkerRepo) RetryJob(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return m.Called(ctx, id, errMsg, retryAt).Error(0)
}

func (m *mockWorkerRepo) MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

func (m *mockWorkerRepo) ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error {
	return m.Called(ctx, id, d).Error(0)
}

type workerFixture struct {
	clock    *testClock
	storage  *queue.MemoryStorage
	enqueuer *queue.Enqueuer
	worker   *queue.Worker
	dead     chan queue.Job
}

func newWorkerFixture(t *testing.T, opts ...queue.WorkerOption) *workerFixture {
	t.Helper()

	f := &workerFixture{clock: newTestClock(), dead: make(chan queue.Job, 10)}
	f.storage = queue.NewMemoryStorage(queue.WithMemoryClock(f.clock.Now))

	var err error
	f.enqueuer, err = queue.NewEnqueuer(f.storage, queue.WithEnqueuerClock(f.clock.Now))
	require.NoError(t, err)

	opts = append([]queue.WorkerOption{
		queue.WithWorkerClock(f.clock.Now),
		queue.WithWorkerLogger(logger.Discard()),
		queue.WithDeadLetterHook(func(_ context.Context, job queue.Job, _ error) { f.dead <- job }),
	}, opts...)
	f.worker, err = queue.NewWorker(f.storage, opts...)
	require.NoError(t, err)
	return f
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	_, err := queue.NewWorker(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	w, err := queue.NewWorker(queue.NewMemoryStorage())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)
	assert.ErrorIs(t, w.Stop(), queue.ErrWorkerNotStarted)

	id, host, pid := w.WorkerInfo()
	assert.NotEmpty(t, id)
	assert.NotEmpty(t, host)
	assert.Positive(t, pid)
}

func TestWorker_ProcessNext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("completes job and exposes job info", func(t *testing.T) {
		t.Parallel()

		f := newWorkerFixture(t)
		var info queue.JobInfo
		f.worker.RegisterHandlers(queue.NewJobHandler("deliver.email", func(ctx context.Context, p deliveryPayload) error {
			info, _ = queue.JobFromContext(ctx)
			return nil
		}))

		id, err := f.enqueuer.Enqueue(ctx, "deliver.email", deliveryPayload{NotificationID: "n1"})
		require.NoError(t, err)

		processed, err := f.worker.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)

		assert.Equal(t, id.String(), info.ID)
		assert.Equal(t, "deliver.email", info.Name)
		assert.Equal(t, 1, info.Attempt)
		assert.Equal(t, queue.StatusCompleted, f.storage.Jobs()[0].Status)

		processed, err = f.worker.ProcessNext(ctx)
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("retries with backoff then dead-letters", func(t *testing.T) {
		t.Parallel()

		f := newWorkerFixture(t)
		var calls atomic.Int32
		f.worker.RegisterHandlers(queue.NewJobHandler("deliver.push", func(context.Context, deliveryPayload) error {
			calls.Add(1)
			return errors.New("fcm unavailable")
		}))

		_, err := f.enqueuer.Enqueue(ctx, "deliver.push", deliveryPayload{NotificationID: "n1"}, queue.WithMaxAttempts(3))
		require.NoError(t, err)

		_, err = f.worker.ProcessNext(ctx)
		require.NoError(t, err)
		job := f.storage.Jobs()[0]
		assert.Equal(t, queue.StatusPending, job.Status)
		assert.Equal(t, "fcm unavailable", job.LastError)
		assert.Equal(t, fixedNow.Add(30*time.Second), job.ScheduledAt)

		processed, err := f.worker.ProcessNext(ctx)
		require.NoError(t, err)
		assert.False(t, processed, "retry is not due")

		f.clock.Advance(30 * time.Second)
		_, err = f.worker.ProcessNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, f.clock.Now().Add(time.Minute), f.storage.Jobs()[0].ScheduledAt)

		f.clock.Advance(time.Minute)
		_, err = f.worker.ProcessNext(ctx)
		require.NoError(t, err)

		assert.Equal(t, int32(3), calls.Load())
		assert.Empty(t, f.storage.Jobs())
		require.Len(t, f.storage.DeadJobs(), 1)
		assert.Equal(t, "fcm unavailable", f.storage.DeadJobs()[0].Error)

		dead := <-f.dead
		assert.Equal(t, "deliver.push", dead.Name)
		assert.Equal(t, queue.StatusFailed, dead.Status)
		assert.Equal(t, 3, dead.Attempts)
	})

	t.Run("permanent error skips retries", func(t *testing.T) {
		t.Parallel()

		f := newWorkerFixture(t)
		f.worker.RegisterHandlers(queue.NewJobHandler("deliver.sms", func(context.Context, deliveryPayload) error {
			return queue.Permanent(errors.New("no phone number"))
		}))
		_, err := f.enqueuer.Enqueue(ctx, "deliver.sms", deliveryPayload{})
		require.NoError(t, err)

		_, err = f.worker.ProcessNext(ctx)
		require.NoError(t, err)
		assert.Empty(t, f.storage.Jobs())
		assert.Len(t, f.storage.DeadJobs(), 1)
		assert.Len(t, f.dead, 1)
	})

	t.Run("panic is a failure", func(t *testing.T) {
		t.Parallel()

		f := newWorkerFixture(t)
		f.worker.RegisterHandlers(queue.NewJobHandler("boom", func(context.Context, deliveryPayload) error {
			panic("boom")
		}))
		_, err := f.enqueuer.Enqueue(ctx, "boom", deliveryPayload{})
		require.NoError(t, err)

		_, err = f.worker.ProcessNext(ctx)
		require.NoError(t, err)
		job := f.storage.Jobs()[0]
		assert.Equal(t, queue.StatusPending, job.Status)
		assert.Contains(t, job.LastError, "panic")
	})

	t.Run("missing handler goes straight to dead letters", func(t *testing.T) {
		t.Parallel()

		f := newWorkerFixture(t)
		f.worker.RegisterHandlers(queue.NewPeriodicHandler("other", func(context.Context) error { return nil }))
		_, err := f.enqueuer.Enqueue(ctx, "deliver.webhook", deliveryPayload{})
		require.NoError(t, err)

		processed, err := f.worker.ProcessNext(ctx)
		assert.True(t, processed)
		assert.ErrorIs(t, err, queue.ErrHandlerNotFound)
		assert.Len(t, f.storage.DeadJobs(), 1)
	})

	t.Run("claim error", func(t *testing.T) {
		t.Parallel()

		repo := new(mockWorkerRepo)
		repo.On("ClaimJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)
		w, err := queue.NewWorker(repo, queue.WithWorkerLogger(logger.Discard()))
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		assert.False(t, processed)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("custom backoff", func(t *testing.T) {
		t.Parallel()

		job := &queue.Job{ID: uuid.New(), Name: "x", Attempts: 1, MaxAttempts: 3, Payload: []byte(`{}`)}
		repo := new(mockWorkerRepo)
		repo.On("ClaimJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(job, nil)
		repo.On("RetryJob", mock.Anything, job.ID, assert.AnError.Error(), fixedNow.Add(5*time.Second)).Return(nil)

		w, err := queue.NewWorker(repo,
			queue.WithWorkerLogger(logger.Discard()),
			queue.WithWorkerClock(func() time.Time { return fixedNow }),
			queue.WithBackoff(func(int) time.Duration { return 5 * time.Second }),
		)
		require.NoError(t, err)
		w.RegisterHandlers(queue.NewJobHandler("x", func(context.Context, deliveryPayload) error { return assert.AnError }))

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []string
	)
	w, err := queue.NewWorker(storage,
		queue.WithPullInterval(5*time.Millisecond),
		queue.WithMaxConcurrentJobs(2),
		queue.WithWorkerLogger(logger.Discard()),
	)
	require.NoError(t, err)
	w.RegisterHandlers(queue.NewJobHandler("deliver.email", func(_ context.Context, p deliveryPayload) error {
		mu.Lock()
		seen = append(seen, p.NotificationID)
		mu.Unlock()
		return nil
	}))

	for _, id := range []string{"n1", "n2", "n3"} {
		_, err := enq.Enqueue(context.Background(), "deliver.email", deliveryPayload{NotificationID: id})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), queue.ErrWorkerStarted)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	mu.Lock()
	assert.ElementsMatch(t, []string{"n1", "n2", "n3"}, seen)
	mu.Unlock()
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.WithWorkerLogger(logger.Discard()))
	require.NoError(t, err)
	w.RegisterHandlers(queue.NewPeriodicHandler("noop", func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx)() }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
