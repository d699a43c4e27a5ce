package notifications

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	mu     sync.RWMutex
	byID   map[string]*Notification
	byUser map[string][]string // userID -> notification ids in insertion order
	now    func() time.Time
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithMemoryClock overrides the clock used for UpdatedAt and ReadAt.
func WithMemoryClock(now func() time.Time) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		byID:   make(map[string]*Notification),
		byUser: make(map[string][]string),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStorage) Create(_ context.Context, notif Notification) error {
	if err := validate(notif); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[notif.ID]; exists {
		return ErrDuplicateNotification
	}
	if key := notif.Metadata.IdempotencyKey; key != "" {
		for _, id := range s.byUser[notif.UserID] {
			if s.byID[id].Metadata.IdempotencyKey == key {
				return fmt.Errorf("%w: idempotency key %q", ErrDuplicateNotification, key)
			}
		}
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = s.now()
	}
	if notif.UpdatedAt.IsZero() {
		notif.UpdatedAt = notif.CreatedAt
	}
	n := notif.Clone()
	s.byID[n.ID] = &n
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n.ID)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, userID, notifID string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[notifID]
	if !ok || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	// Return a copy to prevent external mutation of stored data
	c := n.Clone()
	return &c, nil
}

func (s *MemoryStorage) List(_ context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Notification
	for _, id := range s.byUser[userID] {
		n := s.byID[id]
		if opts.OnlyUnread && !n.IsUnread() {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, n.Type) {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, n.OverallStatus) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, n.Clone())
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := opts.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

func (s *MemoryStorage) UpdateChannelStatus(_ context.Context, notifID string, ch events.Channel, from []ChannelStatus, to ChannelStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[notifID]
	if !ok {
		return ErrNotificationNotFound
	}
	st, ok := n.Channels[ch]
	if !ok || !st.Enabled {
		return ErrChannelNotEnabled
	}
	if !slices.Contains(from, st.Status) {
		return ErrStatusConflict
	}

	now := s.now()
	st.Status = to
	st.Error = reason
	st.UpdatedAt = now
	n.Channels[ch] = st
	n.UpdatedAt = now
	return nil
}

func (s *MemoryStorage) RefreshOverallStatus(_ context.Context, notifID string) (OverallStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[notifID]
	if !ok {
		return "", ErrNotificationNotFound
	}
	if n.OverallStatus == OverallExpired {
		return OverallExpired, nil
	}
	status := DeriveOverallStatus(n.Channels)
	if status != n.OverallStatus {
		n.OverallStatus = status
		n.UpdatedAt = s.now()
	}
	return status, nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, userID string, notifIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range notifIDs {
		n, ok := s.byID[id]
		if !ok || n.UserID != userID || !n.IsUnread() {
			continue
		}
		st := n.Channels[events.ChannelInApp]
		st.Status = StatusRead
		st.UpdatedAt = now
		n.Channels[events.ChannelInApp] = st
		n.ReadAt = &now
		n.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.byUser[userID] {
		if s.byID[id].IsUnread() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) ExistsByIdempotencyKey(_ context.Context, userID, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byUser[userID] {
		if s.byID[id].Metadata.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, notif := range s.byID {
		if notif.OverallStatus == OverallPending && notif.IsExpired(now) {
			notif.OverallStatus = OverallExpired
			notif.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func validate(n Notification) error {
	switch {
	case n.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidNotification)
	case n.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidNotification)
	case len(n.Channels) == 0:
		return fmt.Errorf("%w: at least one channel is required", ErrInvalidNotification)
	}
	return nil
}
