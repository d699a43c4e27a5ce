package reminders

import "errors"

var (
	ErrMissingDependency = errors.New("reminders: missing dependency")
	ErrInvalidTimezone   = errors.New("reminders: invalid timezone")
	ErrSubscriptionQuery = errors.New("reminders: failed to query subscriptions")
	ErrContentQuery      = errors.New("reminders: failed to query content")
	ErrAudienceQuery     = errors.New("reminders: failed to query digest audience")
	ErrExpireSweep       = errors.New("reminders: failed to expire notifications")
)
