package redis

import "errors"

// ErrNotReady wraps the last ping error once retries or the connect timeout
// are exhausted.
var (
	ErrEmptyConnectionURL = errors.New("redis: empty connection url")
	ErrInvalidURL         = errors.New("redis: invalid connection url")
	ErrNotReady           = errors.New("redis: quota backend not ready")
	ErrHealthcheckFailed  = errors.New("redis: quota backend healthcheck failed")
)
