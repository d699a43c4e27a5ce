package notifications

import "errors"

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrDuplicateNotification = errors.New("notification already exists")
	ErrInvalidNotification   = errors.New("invalid notification")
	ErrStatusConflict        = errors.New("notification channel is not in the expected status")
	ErrChannelNotEnabled     = errors.New("notification channel is not enabled")
	ErrStorageFailed         = errors.New("notification storage failed")
)
