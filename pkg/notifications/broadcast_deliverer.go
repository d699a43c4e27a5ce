package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// BroadcastDeliverer streams in-app notifications to live subscribers of a
// user, one in-memory broadcaster per user kept in an LRU.
type BroadcastDeliverer struct {
	users           *cache.LRUCache[string, broadcast.Broadcaster[Notification]]
	bufferSize      int
	maxBroadcasters int
	logger          *slog.Logger
}

// BroadcastDelivererOption configures a BroadcastDeliverer.
type BroadcastDelivererOption func(*BroadcastDeliverer)

// WithBroadcastLogger sets the logger for the BroadcastDeliverer.
func WithBroadcastLogger(l *slog.Logger) BroadcastDelivererOption {
	return func(b *BroadcastDeliverer) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMaxBroadcasters caps the number of per-user broadcasters. The least
// recently used one is closed when the cap is reached. Default is 10,000.
func WithMaxBroadcasters(limit int) BroadcastDelivererOption {
	return func(b *BroadcastDeliverer) {
		if limit > 0 {
			b.maxBroadcasters = limit
		}
	}
}

// NewBroadcastDeliverer creates a new broadcast-based deliverer.
func NewBroadcastDeliverer(bufferSize int, opts ...BroadcastDelivererOption) *BroadcastDeliverer {
	b := &BroadcastDeliverer{
		bufferSize:      bufferSize,
		maxBroadcasters: 10000,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.users = cache.NewLRUCache[string, broadcast.Broadcaster[Notification]](b.maxBroadcasters)
	b.users.SetEvictCallback(func(userID string, br broadcast.Broadcaster[Notification]) {
		if err := br.Close(); err != nil {
			b.logger.LogAttrs(context.Background(), slog.LevelError, "failed to close evicted broadcaster",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	})
	return b
}

// Deliver broadcasts notif if its in-app channel is enabled.
func (d *BroadcastDeliverer) Deliver(ctx context.Context, notif Notification) error {
	if st, ok := notif.Channels[events.ChannelInApp]; !ok || !st.Enabled {
		return nil
	}
	return d.broadcasterFor(notif.UserID).Broadcast(ctx, broadcast.Message[Notification]{Data: notif})
}

// DeliverBatch broadcasts every in-app notification of notifs. A failure for
// one notification does not stop the rest.
func (d *BroadcastDeliverer) DeliverBatch(ctx context.Context, notifs []Notification) error {
	for _, notif := range notifs {
		if err := d.Deliver(ctx, notif); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "failed to broadcast notification",
				logger.NotificationID(notif.ID),
				logger.UserID(notif.UserID),
				logger.Error(err),
			)
		}
	}
	return nil
}

// Subscribe returns a subscriber for a user's live notifications. Transport
// layers (SSE, WebSocket) read from it.
func (d *BroadcastDeliverer) Subscribe(ctx context.Context, userID string) broadcast.Subscriber[Notification] {
	return d.broadcasterFor(userID).Subscribe(ctx)
}

// Close closes all user broadcasters.
func (d *BroadcastDeliverer) Close() error {
	// Clear runs the eviction callback for each broadcaster
	d.users.Clear()
	return nil
}

func (d *BroadcastDeliverer) broadcasterFor(userID string) broadcast.Broadcaster[Notification] {
	return d.users.GetOrPut(userID, func() broadcast.Broadcaster[Notification] {
		return broadcast.NewMemoryBroadcaster[Notification](d.bufferSize)
	})
}
