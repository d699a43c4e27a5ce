package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

// DefaultMaxAttempts is the attempt budget of a job unless overridden.
const DefaultMaxAttempts = 5

// JobKind tells one-time jobs from scheduler-produced ones.
type JobKind string

const (
	KindOneTime  JobKind = "one-time"
	KindPeriodic JobKind = "periodic"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Priority orders claimable jobs, higher first.
type Priority int8

const (
	PriorityMin      Priority = 0
	PriorityLow      Priority = 2
	PriorityMedium   Priority = 5
	PriorityHigh     Priority = 7
	PriorityCritical Priority = 10
	PriorityMax      Priority = PriorityCritical
	PriorityDefault  Priority = PriorityMedium
)

// Valid reports whether p is within [PriorityMin, PriorityMax].
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Job is a unit of background work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	Kind        JobKind         `json:"kind"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      JobStatus       `json:"status"`
	Priority    Priority        `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	LockedUntil *time.Time      `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID      `json:"locked_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Exhausted reports whether the job has used its whole attempt budget.
// Attempts is incremented when a job is claimed.
func (j Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// DeadJob is a job that failed permanently, kept for inspection and replay.
type DeadJob struct {
	ID       uuid.UUID       `json:"id"`
	JobID    uuid.UUID       `json:"job_id"`
	Queue    string          `json:"queue"`
	Kind     JobKind         `json:"kind"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Priority Priority        `json:"priority"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
}
