package preferences

import "errors"

var (
	ErrEmptyUserID        = errors.New("preferences: empty user id")
	ErrNotFound           = errors.New("preferences: not found")
	ErrUnknownChannel     = errors.New("preferences: unknown channel")
	ErrUnknownCategory    = errors.New("preferences: unknown category or notification type")
	ErrStoreFailed        = errors.New("preferences: store operation failed")
	ErrQuotaCounterFailed = errors.New("preferences: quota counter failed")
)
