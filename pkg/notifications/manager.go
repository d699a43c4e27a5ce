package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Manager is the entry point to notification records: it persists new
// records, pushes in-app ones to live sessions and serves the read API.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerClock overrides the clock used to stamp new records.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a new notification manager. A nil deliverer disables
// live delivery.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}
	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send persists notif and then, best effort, pushes it to live sessions.
// The stored record is returned with ID, timestamps and overall status set.
func (m *Manager) Send(ctx context.Context, notif Notification) (Notification, error) {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = m.now()
	}
	notif.UpdatedAt = notif.CreatedAt
	if notif.OverallStatus == "" {
		notif.OverallStatus = DeriveOverallStatus(notif.Channels)
	}

	// Store first so a failed live push never loses the record
	if err := m.storage.Create(ctx, notif); err != nil {
		return Notification{}, fmt.Errorf("failed to store notification: %w", err)
	}

	if err := m.deliverer.Deliver(ctx, notif); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deliver notification, but it was stored successfully",
			logger.NotificationID(notif.ID),
			logger.UserID(notif.UserID),
			logger.Error(err),
		)
	}
	return notif, nil
}

func (m *Manager) Get(ctx context.Context, userID, notifID string) (*Notification, error) {
	return m.storage.Get(ctx, userID, notifID)
}

func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

func (m *Manager) MarkRead(ctx context.Context, userID string, notifIDs ...string) error {
	return m.storage.MarkRead(ctx, userID, notifIDs...)
}

// MarkAllRead marks all unread in-app notifications of a user as read.
func (m *Manager) MarkAllRead(ctx context.Context, userID string) error {
	unread, err := m.storage.List(ctx, userID, ListOptions{OnlyUnread: true})
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}
	ids := make([]string, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	return m.storage.MarkRead(ctx, userID, ids...)
}

func (m *Manager) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}

// Exists reports whether the user already has a notification with the
// idempotency key.
func (m *Manager) Exists(ctx context.Context, userID, idempotencyKey string) (bool, error) {
	return m.storage.ExistsByIdempotencyKey(ctx, userID, idempotencyKey)
}

// MarkChannel moves a channel of a notification to a terminal delivery
// status and refreshes the overall status.
func (m *Manager) MarkChannel(ctx context.Context, notifID string, ch events.Channel, to ChannelStatus, reason string) (OverallStatus, error) {
	from := []ChannelStatus{StatusPending}
	if to == StatusFailed {
		// a retried job may have recorded a failure already
		from = append(from, StatusFailed)
	}
	if err := m.storage.UpdateChannelStatus(ctx, notifID, ch, from, to, reason); err != nil {
		return "", err
	}
	return m.storage.RefreshOverallStatus(ctx, notifID)
}

// RefreshOverallStatus recomputes and persists the overall status.
func (m *Manager) RefreshOverallStatus(ctx context.Context, notifID string) (OverallStatus, error) {
	return m.storage.RefreshOverallStatus(ctx, notifID)
}

// ExpireStale marks pending notifications past their expiry as expired.
func (m *Manager) ExpireStale(ctx context.Context) (int64, error) {
	n, err := m.storage.MarkExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "expired stale notifications",
			logger.Count("count", int(n)),
		)
	}
	return n, nil
}

// Storage returns the underlying notification storage.
func (m *Manager) Storage() Storage {
	return m.storage
}
