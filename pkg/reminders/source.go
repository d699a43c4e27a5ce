package reminders

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// SubscriptionStatus is the billing state of a subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Subscription is the read model the reminders need.
type Subscription struct {
	ID      string             `bson:"_id"`
	UserID  string             `bson:"user_id"`
	Tier    string             `bson:"tier"`
	Status  SubscriptionStatus `bson:"status"`
	EndDate time.Time          `bson:"end_date"`
}

// ContentItem is a published piece of content ranked for the digest.
type ContentItem struct {
	ID          string    `bson:"_id" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Category    string    `bson:"category" json:"category"`
	Premium     bool      `bson:"premium" json:"premium"`
	Engagement  int       `bson:"engagement" json:"engagement"`
	PublishedAt time.Time `bson:"published_at" json:"published_at"`
}

type (
	// SubscriptionSource finds subscriptions by end date.
	SubscriptionSource interface {
		// EndingBetween returns subscriptions with from <= EndDate < to.
		EndingBetween(ctx context.Context, from, to time.Time) ([]Subscription, error)
	}

	// ContentSource ranks recently published content.
	ContentSource interface {
		// Top returns up to limit items published at or after since, most
		// engaging first.
		Top(ctx context.Context, since time.Time, limit int) ([]ContentItem, error)
	}
)

// MemorySubscriptions is an in-memory SubscriptionSource.
type MemorySubscriptions struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewMemorySubscriptions returns a source holding subs.
func NewMemorySubscriptions(subs ...Subscription) *MemorySubscriptions {
	m := &MemorySubscriptions{subs: make(map[string]Subscription, len(subs))}
	for _, s := range subs {
		m.subs[s.ID] = s
	}
	return m
}

// Put adds or replaces s.
func (m *MemorySubscriptions) Put(s Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID] = s
}

func (m *MemorySubscriptions) EndingBetween(_ context.Context, from, to time.Time) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Subscription
	for _, s := range m.subs {
		if !s.EndDate.Before(from) && s.EndDate.Before(to) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int {
		if c := a.EndDate.Compare(b.EndDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// MemoryContent is an in-memory ContentSource.
type MemoryContent struct {
	mu    sync.RWMutex
	items []ContentItem
}

// NewMemoryContent returns a source holding items.
func NewMemoryContent(items ...ContentItem) *MemoryContent {
	return &MemoryContent{items: slices.Clone(items)}
}

// Add appends items.
func (m *MemoryContent) Add(items ...ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

func (m *MemoryContent) Top(_ context.Context, since time.Time, limit int) ([]ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ContentItem
	for _, it := range m.items {
		if !it.PublishedAt.Before(since) {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b ContentItem) int {
		if a.Engagement != b.Engagement {
			return b.Engagement - a.Engagement
		}
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
