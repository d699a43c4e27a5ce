package dispatch

import "errors"

var (
	ErrMissingDependency = errors.New("dispatch: missing dependency")
	ErrEmptyUserID       = errors.New("dispatch: empty recipient user id")
	ErrLoadPreferences   = errors.New("dispatch: failed to load preferences")
	ErrStoreNotification = errors.New("dispatch: failed to store notification")
	ErrIdempotencyCheck  = errors.New("dispatch: idempotency check failed")
)
