package notifications

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// Storage handles notification persistence. Every state change is an atomic
// conditional update on a single record.
type Storage interface {
	// Create stores a new notification.
	Create(ctx context.Context, notif Notification) error

	// Get retrieves a single notification of a user.
	Get(ctx context.Context, userID, notifID string) (*Notification, error)

	// List returns notifications for a user, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)

	// UpdateChannelStatus moves ch from one of from to to. It returns
	// ErrStatusConflict when the channel is in another status.
	UpdateChannelStatus(ctx context.Context, notifID string, ch events.Channel, from []ChannelStatus, to ChannelStatus, reason string) error

	// RefreshOverallStatus recomputes and stores the overall status from the
	// current channel statuses. Expired records are left alone.
	RefreshOverallStatus(ctx context.Context, notifID string) (OverallStatus, error)

	// MarkRead moves the in-app channel of the given notifications from unread to read.
	MarkRead(ctx context.Context, userID string, notifIDs ...string) error

	// CountUnread returns the number of unread in-app notifications.
	CountUnread(ctx context.Context, userID string) (int, error)

	// ExistsByIdempotencyKey reports whether the user already has a
	// notification carrying key.
	ExistsByIdempotencyKey(ctx context.Context, userID, key string) (bool, error)

	// MarkExpired flips pending records whose ExpiresAt is before now to
	// expired and returns how many changed.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit      int             // Maximum number of notifications to return (0 = no limit)
	Offset     int             // Number of notifications to skip for pagination
	OnlyUnread bool            // When true, only return unread in-app notifications
	Types      []events.Type   // If specified, only return notifications of these types
	Statuses   []OverallStatus // If specified, only return notifications in these overall statuses
	Since      *time.Time      // If specified, only return notifications created after this time
}
