package queue

import "errors"

var (
	ErrRepositoryNil          = errors.New("queue: repository cannot be nil")
	ErrPayloadNil             = errors.New("queue: payload cannot be nil")
	ErrPayloadMarshal         = errors.New("queue: failed to marshal payload")
	ErrPayloadUnmarshal       = errors.New("queue: failed to unmarshal payload")
	ErrJobCreate              = errors.New("queue: failed to create job")
	ErrInvalidPriority        = errors.New("queue: priority must be between 0 and 10")
	ErrNoItemsToEnqueue       = errors.New("queue: no items to enqueue")
	ErrHandlerNotFound        = errors.New("queue: no handler registered for job")
	ErrNoHandlers             = errors.New("queue: no job handlers registered")
	ErrJobAlreadyRegistered   = errors.New("queue: periodic job already registered")
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no registered jobs")
	ErrNoJobToClaim           = errors.New("queue: no job to claim")
	ErrJobNotFound            = errors.New("queue: job not found")
	ErrJobNotProcessing       = errors.New("queue: job is not in processing state")
	ErrWorkerStarted          = errors.New("queue: worker already started")
	ErrWorkerNotStarted       = errors.New("queue: worker not started")
	ErrStorageFailed          = errors.New("queue: storage operation failed")
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker dead-letters the job instead of
// scheduling another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
