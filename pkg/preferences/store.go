package preferences

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// Store persists preference documents.
type Store interface {
	// GetOrCreate returns the user's document, creating it from Defaults on
	// first access.
	GetOrCreate(ctx context.Context, userID string) (Preference, error)
	Save(ctx context.Context, p Preference) error
	// Reserve atomically takes one slot of the channel's daily quota. It
	// returns false when the quota is used up. Unlimited channels always
	// succeed.
	Reserve(ctx context.Context, userID string, ch events.Channel, now time.Time) (bool, error)
	// Release returns a slot taken by Reserve earlier in the same day, for a
	// delivery that was never recorded.
	Release(ctx context.Context, userID string, ch events.Channel, now time.Time) error
	// ListOptedIn returns documents with at least one channel on for
	// (category, notification type).
	ListOptedIn(ctx context.Context, cat events.Category, nt events.NotificationType) ([]Preference, error)
}
