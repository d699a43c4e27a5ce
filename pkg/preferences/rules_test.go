package preferences_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/preferences"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestIsEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		specific bool
		global   bool
		want     bool
	}{
		{"both off", false, false, false},
		{"specific off", false, true, false},
		{"global off", true, false, false},
		{"both on", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for _, ch := range events.AllChannels() {
				p := preferences.Defaults("u1", base)
				flags, ok := p.Categories.Flags(events.CategorySubscription, events.TypeReminders)
				require.True(t, ok)
				require.NoError(t, flags.Set(ch, tt.specific))

				g := map[events.Channel]*bool{
					events.ChannelEmail:   &p.Global.EmailEnabled,
					events.ChannelPush:    &p.Global.PushEnabled,
					events.ChannelSMS:     &p.Global.SMSEnabled,
					events.ChannelInApp:   &p.Global.InAppEnabled,
					events.ChannelWebhook: &p.Global.WebhookEnabled,
				}
				*g[ch] = tt.global

				got := preferences.IsEnabled(p, events.CategorySubscription, events.TypeReminders, ch)
				assert.Equal(t, tt.want, got, ch)
			}
		})
	}

	t.Run("unknown classification", func(t *testing.T) {
		t.Parallel()
		p := preferences.Defaults("u1", base)
		assert.False(t, preferences.IsEnabled(p, events.CategoryEngagement, events.TypeBilling, events.ChannelEmail))
	})
}

func TestIsInQuietHours(t *testing.T) {
	t.Parallel()

	at := func(hour int) time.Time { return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC) }
	wrap := preferences.Defaults("u1", base)
	wrap.QuietHours = preferences.QuietHours{Enabled: true, StartHour: 22, EndHour: 7, Timezone: "UTC"}

	tests := []struct {
		name   string
		prefs  preferences.Preference
		now    time.Time
		bypass bool
		want   bool
	}{
		{"wraparound late evening", wrap, at(23), false, true},
		{"wraparound early morning", wrap, at(3), false, true},
		{"wraparound start boundary", wrap, at(22), false, true},
		{"wraparound end boundary", wrap, at(7), false, false},
		{"wraparound daytime", wrap, at(10), false, false},
		{"critical bypass", wrap, at(23), true, false},
		{"disabled", preferences.Defaults("u1", base), at(23), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, preferences.IsInQuietHours(tt.prefs, tt.now, tt.bypass))
		})
	}

	t.Run("same-day window", func(t *testing.T) {
		t.Parallel()
		p := preferences.Defaults("u1", base)
		p.QuietHours = preferences.QuietHours{Enabled: true, StartHour: 13, EndHour: 15}
		assert.True(t, preferences.IsInQuietHours(p, at(14), false))
		assert.False(t, preferences.IsInQuietHours(p, at(15), false))
		assert.False(t, preferences.IsInQuietHours(p, at(12), false))
	})

	t.Run("evaluated in user timezone", func(t *testing.T) {
		t.Parallel()
		p := preferences.Defaults("u1", base)
		p.QuietHours = preferences.QuietHours{Enabled: true, StartHour: 22, EndHour: 7, Timezone: "Asia/Tokyo"}
		// 14:30 UTC is 23:30 in Tokyo
		assert.True(t, preferences.IsInQuietHours(p, at(14), false))
		// 02:30 UTC is 11:30 in Tokyo
		assert.False(t, preferences.IsInQuietHours(p, at(2), false))
	})

	t.Run("invalid timezone falls back to UTC", func(t *testing.T) {
		t.Parallel()
		p := preferences.Defaults("u1", base)
		p.QuietHours = preferences.QuietHours{Enabled: true, StartHour: 22, EndHour: 7, Timezone: "Mars/Olympus"}
		assert.True(t, preferences.IsInQuietHours(p, at(23), false))
	})
}

func TestHasReachedDailyLimit(t *testing.T) {
	t.Parallel()

	p := preferences.Defaults("u1", base)
	p.DailyLimits.Email = preferences.DailyLimit{Max: 2, SentToday: 2, ResetAt: base.Add(time.Hour)}

	assert.True(t, preferences.HasReachedDailyLimit(p, events.ChannelEmail, base))
	assert.False(t, preferences.HasReachedDailyLimit(p, events.ChannelEmail, base.Add(time.Hour)), "lazy reset")
	assert.Equal(t, 0, preferences.SentToday(p, events.ChannelEmail, base.Add(2*time.Hour)))
	assert.False(t, preferences.HasReachedDailyLimit(p, events.ChannelInApp, base), "unlimited")
}

func TestNextReset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), preferences.NextReset(base, "UTC"))
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), preferences.NextReset(base, ""))

	// 12:00 UTC is 21:00 in Tokyo; next Tokyo midnight is 15:00 UTC
	assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), preferences.NextReset(base, "Asia/Tokyo"))
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	p := preferences.Defaults("u1", base)

	assert.True(t, p.Global.EmailEnabled)
	assert.True(t, p.Global.PushEnabled)
	assert.True(t, p.Global.InAppEnabled)
	assert.False(t, p.Global.SMSEnabled)
	assert.False(t, p.Global.WebhookEnabled)
	assert.False(t, p.QuietHours.Enabled)
	assert.Equal(t, 22, p.QuietHours.StartHour)
	assert.Equal(t, 7, p.QuietHours.EndHour)
	assert.Equal(t, 10, p.DailyLimits.Email.Max)
	assert.True(t, p.DailyLimits.InApp.Unlimited())

	for _, typ := range events.AllTypes() {
		def, _ := events.Lookup(typ)
		flags, ok := p.Categories.Flags(def.Category, def.NotificationType)
		require.True(t, ok, typ)
		assert.True(t, flags.Email && flags.Push && flags.InApp, typ)
	}
}
