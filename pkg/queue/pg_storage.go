package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, queue, kind, name, payload, status, priority, attempts, max_attempts,
	scheduled_at, locked_until, locked_by, processed_at, last_error, created_at`

// PgStorage keeps jobs in PostgreSQL. Claims use FOR UPDATE SKIP LOCKED so
// any number of workers can share the table.
type PgStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// PgStorageOption configures a PgStorage.
type PgStorageOption func(*PgStorage)

// WithPgClock overrides the time source.
func WithPgClock(now func() time.Time) PgStorageOption {
	return func(s *PgStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPgStorage creates a PostgreSQL job store. Apply Migrations first.
func NewPgStorage(pool *pgxpool.Pool, opts ...PgStorageOption) *PgStorage {
	s := &PgStorage{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJobs inserts jobs in one transaction.
func (s *PgStorage) CreateJobs(ctx context.Context, jobs ...*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(`INSERT INTO jobs (`+jobColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			j.ID, j.Queue, string(j.Kind), j.Name, nullableJSON(j.Payload), string(j.Status),
			int16(j.Priority), j.Attempts, j.MaxAttempts, j.ScheduledAt, j.LockedUntil,
			j.LockedBy, j.ProcessedAt, nullableString(j.LastError), j.CreatedAt,
		)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return errors.Join(ErrStorageFailed, fmt.Errorf("insert %d jobs: %w", len(jobs), err))
	}
	return nil
}

func (s *PgStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Job, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'processing', attempts = attempts + 1, locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = ANY($1)
			  AND scheduled_at <= $4
			  AND (status = 'pending' OR (status = 'processing' AND locked_until < $4))
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		queues, workerID, now.Add(lockFor), now,
	)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoJobToClaim
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, fmt.Errorf("claim job: %w", err))
	}
	return job, nil
}

func (s *PgStorage) CompleteJob(ctx context.Context, id uuid.UUID) error {
	return s.execProcessing(ctx, id, `
		UPDATE jobs
		SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`,
		id, s.now(),
	)
}

func (s *PgStorage) RetryJob(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return s.execProcessing(ctx, id, `
		UPDATE jobs
		SET status = 'pending', last_error = $2, scheduled_at = $3, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg, retryAt,
	)
}

func (s *PgStorage) MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM jobs WHERE id = $1
			RETURNING id, queue, kind, name, payload, priority, attempts
		)
		INSERT INTO jobs_dlq (id, job_id, queue, kind, name, payload, priority, attempts, error, failed_at)
		SELECT $2, id, queue, kind, name, payload, priority, attempts, $3, $4 FROM moved`,
		id, uuid.New(), errMsg, s.now(),
	)
	if err != nil {
		return errors.Join(ErrStorageFailed, fmt.Errorf("move job %s to dlq: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *PgStorage) ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error {
	return s.execProcessing(ctx, id, `
		UPDATE jobs SET locked_until = $2
		WHERE id = $1 AND status = 'processing'`,
		id, s.now().Add(d),
	)
}

// PendingJobByName returns the earliest pending job with the given name.
func (s *PgStorage) PendingJobByName(ctx context.Context, name string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE name = $1 AND status = 'pending'
		ORDER BY scheduled_at
		LIMIT 1`,
		name,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, fmt.Errorf("pending job %q: %w", name, err))
	}
	return job, nil
}

// DeadJobs returns the most recent dead-lettered jobs, newest first.
func (s *PgStorage) DeadJobs(ctx context.Context, limit int) ([]DeadJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, queue, kind, name, payload, priority, attempts, error, failed_at
		FROM jobs_dlq
		ORDER BY failed_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}

	dead, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadJob, error) {
		var (
			d        DeadJob
			kind     string
			payload  []byte
			priority int16
		)
		err := row.Scan(&d.ID, &d.JobID, &d.Queue, &kind, &d.Name, &payload, &priority, &d.Attempts, &d.Error, &d.FailedAt)
		d.Kind = JobKind(kind)
		d.Payload = payload
		d.Priority = Priority(priority)
		return d, err
	})
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return dead, nil
}

func (s *PgStorage) execProcessing(ctx context.Context, id uuid.UUID, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return errors.Join(ErrStorageFailed, fmt.Errorf("job %s: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotProcessing, id)
	}
	return nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j         Job
		kind      string
		status    string
		priority  int16
		payload   []byte
		lastError *string
	)
	err := row.Scan(&j.ID, &j.Queue, &kind, &j.Name, &payload, &status, &priority, &j.Attempts,
		&j.MaxAttempts, &j.ScheduledAt, &j.LockedUntil, &j.LockedBy, &j.ProcessedAt, &lastError, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	j.Kind = JobKind(kind)
	j.Status = JobStatus(status)
	j.Priority = Priority(priority)
	j.Payload = payload
	if lastError != nil {
		j.LastError = *lastError
	}
	return &j, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
