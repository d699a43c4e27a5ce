package preferences

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// MemoryStore is a thread-safe in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.Mutex
	prefs map[string]*Preference
	now   func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock overrides the clock used to stamp new documents.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		prefs: make(map[string]*Preference),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) GetOrCreate(_ context.Context, userID string) (Preference, error) {
	if userID == "" {
		return Preference{}, ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[userID]
	if !ok {
		d := Defaults(userID, s.now())
		p = &d
		s.prefs[userID] = p
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, p Preference) error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p = p.Clone()
	p.UpdatedAt = s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}
	s.prefs[p.UserID] = &p
	return nil
}

func (s *MemoryStore) Reserve(_ context.Context, userID string, ch events.Channel, now time.Time) (bool, error) {
	if userID == "" {
		return false, ErrEmptyUserID
	}
	if !ch.Valid() {
		return false, ErrUnknownChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[userID]
	if !ok {
		return false, ErrNotFound
	}
	return reserveLocked(p, ch, now), nil
}

func (s *MemoryStore) Release(_ context.Context, userID string, ch events.Channel, now time.Time) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if !ch.Valid() {
		return ErrUnknownChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[userID]
	if !ok {
		return ErrNotFound
	}
	releaseLocked(p, ch, now)
	return nil
}

func (s *MemoryStore) ListOptedIn(_ context.Context, cat events.Category, nt events.NotificationType) ([]Preference, error) {
	var probe Categories
	if _, ok := probe.Flags(cat, nt); !ok {
		return nil, ErrUnknownCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Preference
	for _, p := range s.prefs {
		if flags, _ := p.Categories.Flags(cat, nt); flags.Any() {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
