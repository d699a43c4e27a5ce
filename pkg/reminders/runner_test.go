package reminders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/preferences"
	"github.com/dmitrymomot/notifykit/pkg/reminders"
)

// Monday, 09:00 UTC.
var now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) listen(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

type mockExpirer struct {
	mock.Mock
}

func (m *mockExpirer) ExpireStale(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type failingSource struct{}

func (failingSource) EndingBetween(context.Context, time.Time, time.Time) ([]reminders.Subscription, error) {
	return nil, assert.AnError
}

type fixture struct {
	subs    *reminders.MemorySubscriptions
	content *reminders.MemoryContent
	prefs   *preferences.MemoryStore
	expirer *mockExpirer
	rec     *recorder
	deps    reminders.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return now }

	f := &fixture{
		subs:    reminders.NewMemorySubscriptions(),
		content: reminders.NewMemoryContent(),
		prefs:   preferences.NewMemoryStore(preferences.WithMemoryClock(clock)),
		expirer: new(mockExpirer),
		rec:     &recorder{},
	}
	bus := events.NewBus(events.WithBusClock(clock), events.WithBusLogger(logger.Discard()))
	bus.Subscribe(events.TopicNotification, f.rec.listen)

	f.deps = reminders.Deps{
		Subscriptions: f.subs,
		Content:       f.content,
		Audience:      preferences.NewEngine(f.prefs, preferences.WithEngineLogger(logger.Discard())),
		Emitter:       bus,
		Expirer:       f.expirer,
	}
	return f
}

func (f *fixture) runner(t *testing.T, opts ...reminders.Option) *reminders.Runner {
	t.Helper()
	opts = append([]reminders.Option{
		reminders.WithClock(func() time.Time { return now }),
		reminders.WithLogger(logger.Discard()),
	}, opts...)
	r, err := reminders.New(f.deps, opts...)
	require.NoError(t, err)
	return r
}

func sub(id string, end time.Time) reminders.Subscription {
	return reminders.Subscription{ID: id, UserID: "user-" + id, Tier: "pro", Status: reminders.StatusActive, EndDate: end}
}

func day(d, h int) time.Time {
	return time.Date(2025, 6, d, h, 0, 0, 0, time.UTC)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("missing dependencies", func(t *testing.T) {
		t.Parallel()
		_, err := reminders.New(reminders.Deps{})
		assert.ErrorIs(t, err, reminders.ErrMissingDependency)
	})

	t.Run("invalid timezone", func(t *testing.T) {
		t.Parallel()
		cfg := reminders.DefaultConfig()
		cfg.Timezone = "Mars/Olympus_Mons"
		_, err := reminders.New(newFixture(t).deps, reminders.WithConfig(cfg))
		assert.ErrorIs(t, err, reminders.ErrInvalidTimezone)
	})
}

func TestIdempotencyKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "sub-1:7:2025-06-02", reminders.IdempotencyKey("sub-1", 7, now))
}

func TestRunner_ExpiringSoon(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	expired := sub("gone", day(9, 1))
	expired.Status = reminders.StatusExpired
	orphan := sub("orphan", day(5, 2))
	orphan.UserID = ""
	for _, s := range []reminders.Subscription{
		sub("s7", day(9, 12)),
		sub("s3", day(5, 0)),
		sub("s1", time.Date(2025, 6, 3, 23, 59, 59, 0, time.UTC)),
		sub("s2", day(4, 10)),
		sub("s8", day(10, 0)),
		expired,
		orphan,
	} {
		f.subs.Put(s)
	}

	r := f.runner(t)
	require.NoError(t, r.ExpiringSoon(context.Background()))

	got := map[string]events.Event{}
	for _, e := range f.rec.all() {
		got[e.Payload.String(events.KeySubscriptionID)] = e
	}
	require.Len(t, got, 3)

	for id, days := range map[string]int{"s7": 7, "s3": 3, "s1": 1} {
		e, ok := got[id]
		require.True(t, ok, id)
		assert.Equal(t, events.SubscriptionExpiringSoon, e.Type)
		assert.Equal(t, events.PriorityHigh, e.Priority)
		assert.Equal(t, "user-"+id, e.Payload.UserID())
		n, _ := e.Payload.Int(events.KeyDaysLeft)
		assert.Equal(t, days, n)
		assert.Equal(t, reminders.IdempotencyKey(id, days, now), e.Metadata.IdempotencyKey)
		assert.Equal(t, reminders.Source, e.Metadata.Source)
	}

	// a rerun on the same day produces the same keys
	require.NoError(t, r.ExpiringSoon(context.Background()))
	all := f.rec.all()
	require.Len(t, all, 6)
	assert.Equal(t, all[0].Metadata.IdempotencyKey, all[3].Metadata.IdempotencyKey)
}

func TestRunner_ExpiringToday(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.subs.Put(sub("later", day(2, 18)))
	f.subs.Put(sub("passed", day(2, 8)))
	f.subs.Put(sub("tomorrow", day(3, 0)))

	require.NoError(t, f.runner(t).ExpiringToday(context.Background()))

	all := f.rec.all()
	require.Len(t, all, 1)
	e := all[0]
	assert.Equal(t, events.SubscriptionExpiringToday, e.Type)
	assert.Equal(t, events.PriorityCritical, e.Priority)
	assert.Contains(t, e.Channels, events.ChannelSMS)
	assert.Equal(t, "later:0:2025-06-02", e.Metadata.IdempotencyKey)
	require.NotNil(t, e.Metadata.ExpiresAt)
	assert.Equal(t, day(3, 0), *e.Metadata.ExpiresAt)
}

func TestRunner_Expired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.subs.Put(sub("d1", day(1, 10)))
	f.subs.Put(sub("d2", time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC)))
	f.subs.Put(sub("d3", time.Date(2025, 5, 30, 23, 0, 0, 0, time.UTC)))
	f.subs.Put(sub("d7", time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, f.runner(t).Expired(context.Background()))

	keys := map[string]int{}
	for _, e := range f.rec.all() {
		assert.Equal(t, events.SubscriptionExpiredReminder, e.Type)
		n, _ := e.Payload.Int(events.KeyDaysLeft)
		keys[e.Payload.String(events.KeySubscriptionID)] = n
	}
	assert.Equal(t, map[string]int{"d1": 1, "d3": 3, "d7": 7}, keys)
}

func TestRunner_Timezone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// 02:00 UTC on June 2 is still June 1 in New York
	f.subs.Put(sub("ny", day(2, 12)))

	cfg := reminders.DefaultConfig()
	cfg.Timezone = "America/New_York"
	r, err := reminders.New(f.deps,
		reminders.WithConfig(cfg),
		reminders.WithClock(func() time.Time { return day(2, 2) }),
		reminders.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	require.NoError(t, r.ExpiringSoon(context.Background()))

	all := f.rec.all()
	require.Len(t, all, 1)
	assert.Equal(t, "ny:1:2025-06-01", all[0].Metadata.IdempotencyKey)
}

func TestRunner_SubscriptionQueryFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deps.Subscriptions = failingSource{}
	r := f.runner(t)

	assert.ErrorIs(t, r.ExpiringSoon(context.Background()), reminders.ErrSubscriptionQuery)
	assert.ErrorIs(t, r.ExpiringToday(context.Background()), reminders.ErrSubscriptionQuery)
	assert.ErrorIs(t, r.Expired(context.Background()), reminders.ErrSubscriptionQuery)
	assert.Empty(t, f.rec.all())
}

func TestRunner_WeeklyDigest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	save := func(userID string, edit func(p *preferences.Preference)) {
		p := preferences.Defaults(userID, now)
		edit(&p)
		require.NoError(t, f.prefs.Save(ctx, p))
	}
	save("u1", func(p *preferences.Preference) { p.Categories.Content.Interests = []string{"ai"} })
	save("u2", func(p *preferences.Preference) { p.Categories.Content.PremiumInsights = preferences.ChannelFlags{} })
	save("u3", func(p *preferences.Preference) { p.Categories.Content.Digest = preferences.ChannelFlags{} })
	save("u4", func(p *preferences.Preference) { p.Categories.Content.Interests = []string{"cooking"} })

	f.content.Add(
		reminders.ContentItem{ID: "a", Title: "AI agents", Category: "ai", Engagement: 10, PublishedAt: now.Add(-24 * time.Hour)},
		reminders.ContentItem{ID: "b", Title: "Premium markets", Category: "finance", Premium: true, Engagement: 50, PublishedAt: now.Add(-48 * time.Hour)},
		reminders.ContentItem{ID: "c", Title: "Budgeting", Category: "finance", Engagement: 5, PublishedAt: now.Add(-72 * time.Hour)},
		reminders.ContentItem{ID: "old", Title: "Old news", Category: "ai", Engagement: 99, PublishedAt: now.Add(-10 * 24 * time.Hour)},
	)

	require.NoError(t, f.runner(t).WeeklyDigest(ctx))

	got := map[string][]string{}
	for _, e := range f.rec.all() {
		assert.Equal(t, events.DigestWeekly, e.Type)
		assert.NotEmpty(t, e.Metadata.IdempotencyKey)
		items, ok := e.Payload[events.KeyItems].([]any)
		require.True(t, ok)
		for _, it := range items {
			got[e.Payload.UserID()] = append(got[e.Payload.UserID()], it.(map[string]any)[events.KeyInsightID].(string))
		}
	}
	assert.Equal(t, map[string][]string{
		"u1": {"a"},
		"u2": {"a", "c"},
	}, got)
}

func TestRunner_ExpireNotifications(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.expirer.On("ExpireStale", mock.Anything).Return(int64(3), nil).Once()
	f.expirer.On("ExpireStale", mock.Anything).Return(int64(0), assert.AnError).Once()
	r := f.runner(t)

	require.NoError(t, r.ExpireNotifications(context.Background()))
	assert.ErrorIs(t, r.ExpireNotifications(context.Background()), reminders.ErrExpireSweep)
	f.expirer.AssertExpectations(t)
}
