package delivery

import "errors"

var (
	ErrMissingDependency = errors.New("delivery: missing dependency")
	ErrInvalidPayload    = errors.New("delivery: invalid job payload")
	ErrNotificationGone  = errors.New("delivery: notification not found")
	ErrLoadNotification  = errors.New("delivery: failed to load notification")
	ErrLoadRecipient     = errors.New("delivery: failed to load recipient")
	ErrUpdateStatus      = errors.New("delivery: failed to update channel status")
	ErrNoAddress         = errors.New("delivery: recipient has no address for channel")
	ErrChannelDisabled   = errors.New("delivery: no sender configured for channel")
)
