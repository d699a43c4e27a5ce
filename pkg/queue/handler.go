package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type (
	// Handler executes jobs of one name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	JobHandlerFunc[T any] func(ctx context.Context, payload T) error
	PeriodicHandlerFunc   func(ctx context.Context) error
)

// NewJobHandler decodes the JSON payload into T before calling fn. An empty
// name falls back to T's qualified type name. Payloads that do not decode
// fail permanently.
func NewJobHandler[T any](name string, fn JobHandlerFunc[T]) Handler {
	if name == "" {
		var payload T
		name = jobName(payload)
	}
	return &jobHandler[T]{name: name, fn: fn}
}

// NewPeriodicHandler wraps a payload-less handler for scheduler-produced jobs.
func NewPeriodicHandler(name string, fn PeriodicHandlerFunc) Handler {
	return &periodicHandler{name: name, fn: fn}
}

type jobHandler[T any] struct {
	name string
	fn   JobHandlerFunc[T]
}

func (h *jobHandler[T]) Name() string { return h.name }

func (h *jobHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return Permanent(errors.Join(ErrPayloadUnmarshal, fmt.Errorf("job %q: %w", h.name, err)))
	}
	return h.fn(ctx, v)
}

type periodicHandler struct {
	name string
	fn   PeriodicHandlerFunc
}

func (h *periodicHandler) Name() string { return h.name }

func (h *periodicHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.fn(ctx)
}

type jobContextKey struct{}

// JobInfo describes the job being handled.
type JobInfo struct {
	ID          string
	Name        string
	Attempt     int
	MaxAttempts int
}

// LastAttempt reports whether a failure now dead-letters the job.
func (i JobInfo) LastAttempt() bool {
	return i.Attempt >= i.MaxAttempts
}

// JobFromContext returns the job a handler was invoked for.
func JobFromContext(ctx context.Context) (JobInfo, bool) {
	info, ok := ctx.Value(jobContextKey{}).(JobInfo)
	return info, ok
}

func withJob(ctx context.Context, job *Job) context.Context {
	return context.WithValue(ctx, jobContextKey{}, JobInfo{
		ID:          job.ID.String(),
		Name:        job.Name,
		Attempt:     job.Attempts,
		MaxAttempts: job.MaxAttempts,
	})
}

// jobName derives a job name from a payload's type, dropping pointer stars.
func jobName(payload any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", payload), "*")
}
