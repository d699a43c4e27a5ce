package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: fixedNow} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newJob(name string, priority queue.Priority, scheduledAt time.Time) *queue.Job {
	return &queue.Job{
		ID:          uuid.New(),
		Queue:       queue.DefaultQueueName,
		Kind:        queue.KindOneTime,
		Name:        name,
		Payload:     []byte(`{}`),
		Status:      queue.StatusPending,
		Priority:    priority,
		MaxAttempts: 3,
		ScheduledAt: scheduledAt,
		CreatedAt:   scheduledAt,
	}
}

func TestMemoryStorage_CreateJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	a := newJob("a", queue.PriorityLow, fixedNow)
	require.NoError(t, storage.CreateJobs(ctx, a))

	// a duplicate id rejects the whole batch
	err := storage.CreateJobs(ctx, newJob("b", queue.PriorityLow, fixedNow), a)
	assert.ErrorIs(t, err, queue.ErrStorageFailed)
	assert.Len(t, storage.Jobs(), 1)

	// stored jobs are copies
	a.Name = "changed"
	assert.Equal(t, "a", storage.Jobs()[0].Name)
}

func TestMemoryStorage_ClaimJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	worker := uuid.New()
	queues := []string{queue.DefaultQueueName}

	t.Run("priority first then schedule", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage(queue.WithMemoryClock(func() time.Time { return fixedNow }))
		require.NoError(t, storage.CreateJobs(ctx,
			newJob("low", queue.PriorityLow, fixedNow.Add(-time.Hour)),
			newJob("high-late", queue.PriorityHigh, fixedNow.Add(-time.Minute)),
			newJob("high-early", queue.PriorityHigh, fixedNow.Add(-2*time.Minute)),
			newJob("future", queue.PriorityCritical, fixedNow.Add(time.Minute)),
		))

		var order []string
		for {
			job, err := storage.ClaimJob(ctx, worker, queues, time.Minute)
			if err != nil {
				assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
				break
			}
			assert.Equal(t, queue.StatusProcessing, job.Status)
			assert.Equal(t, 1, job.Attempts)
			require.NotNil(t, job.LockedBy)
			assert.Equal(t, worker, *job.LockedBy)
			order = append(order, job.Name)
		}
		assert.Equal(t, []string{"high-early", "high-late", "low"}, order)
	})

	t.Run("skips other queues", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage(queue.WithMemoryClock(func() time.Time { return fixedNow }))
		job := newJob("other", queue.PriorityHigh, fixedNow)
		job.Queue = "other"
		require.NoError(t, storage.CreateJobs(ctx, job))

		_, err := storage.ClaimJob(ctx, worker, queues, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("expired lock is claimable again", func(t *testing.T) {
		t.Parallel()

		clock := newTestClock()
		storage := queue.NewMemoryStorage(queue.WithMemoryClock(clock.Now))
		require.NoError(t, storage.CreateJobs(ctx, newJob("a", queue.PriorityLow, fixedNow)))

		_, err := storage.ClaimJob(ctx, worker, queues, time.Minute)
		require.NoError(t, err)
		_, err = storage.ClaimJob(ctx, worker, queues, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)

		clock.Advance(2 * time.Minute)
		job, err := storage.ClaimJob(ctx, uuid.New(), queues, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 2, job.Attempts)
	})
}

func TestMemoryStorage_Transitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newTestClock()
	storage := queue.NewMemoryStorage(queue.WithMemoryClock(clock.Now))
	queues := []string{queue.DefaultQueueName}

	job := newJob("a", queue.PriorityLow, fixedNow)
	require.NoError(t, storage.CreateJobs(ctx, job))

	assert.ErrorIs(t, storage.CompleteJob(ctx, job.ID), queue.ErrJobNotProcessing)
	assert.ErrorIs(t, storage.CompleteJob(ctx, uuid.New()), queue.ErrJobNotFound)

	_, err := storage.ClaimJob(ctx, uuid.New(), queues, time.Minute)
	require.NoError(t, err)

	retryAt := fixedNow.Add(30 * time.Second)
	require.NoError(t, storage.RetryJob(ctx, job.ID, "boom", retryAt))
	got := storage.Jobs()[0]
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Equal(t, "boom", got.LastError)
	assert.Equal(t, retryAt, got.ScheduledAt)
	assert.Nil(t, got.LockedBy)

	_, err = storage.ClaimJob(ctx, uuid.New(), queues, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim, "retry is not due yet")

	clock.Advance(time.Minute)
	_, err = storage.ClaimJob(ctx, uuid.New(), queues, time.Minute)
	require.NoError(t, err)
	require.NoError(t, storage.ExtendLock(ctx, job.ID, time.Hour))
	require.NoError(t, storage.CompleteJob(ctx, job.ID))

	got = storage.Jobs()[0]
	assert.Equal(t, queue.StatusCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.Equal(t, clock.Now(), *got.ProcessedAt)
}

func TestMemoryStorage_MoveToDLQ(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage(queue.WithMemoryClock(func() time.Time { return fixedNow }))
	job := newJob("deliver.sms", queue.PriorityCritical, fixedNow)
	require.NoError(t, storage.CreateJobs(ctx, job))

	require.NoError(t, storage.MoveToDLQ(ctx, job.ID, "provider rejected"))
	assert.Empty(t, storage.Jobs())

	dead := storage.DeadJobs()
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].JobID)
	assert.Equal(t, "deliver.sms", dead[0].Name)
	assert.Equal(t, "provider rejected", dead[0].Error)
	assert.Equal(t, fixedNow, dead[0].FailedAt)

	assert.ErrorIs(t, storage.MoveToDLQ(ctx, job.ID, "again"), queue.ErrJobNotFound)
}

func TestMemoryStorage_PendingJobByName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	_, err := storage.PendingJobByName(ctx, "digest")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	later := newJob("digest", queue.PriorityLow, fixedNow.Add(time.Hour))
	earlier := newJob("digest", queue.PriorityLow, fixedNow)
	require.NoError(t, storage.CreateJobs(ctx, later, earlier))

	got, err := storage.PendingJobByName(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, got.ID)
}

func TestMemoryStorage_ConcurrentClaims(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	for range 50 {
		require.NoError(t, storage.CreateJobs(ctx, newJob("a", queue.PriorityLow, time.Now().Add(-time.Second))))
	}

	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
		wg      sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Hour)
				if err != nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 50)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}
