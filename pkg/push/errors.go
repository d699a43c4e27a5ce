package push

import "errors"

var (
	ErrInvalidConfig   = errors.New("push: invalid config")
	ErrNoTokens        = errors.New("push: no device tokens")
	ErrNoValidTokens   = errors.New("push: every device token was rejected")
	ErrEmptyMessage    = errors.New("push: title and body are empty")
	ErrFailedToSend    = errors.New("push: failed to send message")
	ErrFailedToConnect = errors.New("push: failed to initialize firebase")
)
