package eventbridge

import "errors"

var (
	ErrInvalidConfig = errors.New("eventbridge: invalid config")
	ErrConnect       = errors.New("eventbridge: failed to connect to broker")
	ErrPublish       = errors.New("eventbridge: failed to publish event")
	ErrClosed        = errors.New("eventbridge: publisher is closed")
)
