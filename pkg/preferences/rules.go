package preferences

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// IsEnabled reports whether both the (category, notification type, channel)
// flag and the channel's global flag are on.
func IsEnabled(p Preference, cat events.Category, nt events.NotificationType, ch events.Channel) bool {
	flags, ok := p.Categories.Flags(cat, nt)
	if !ok {
		return false
	}
	return flags.Get(ch) && p.Global.Enabled(ch)
}

// IsInQuietHours reports whether now falls into the user's quiet hours.
// bypassForCritical short-circuits to false.
func IsInQuietHours(p Preference, now time.Time, bypassForCritical bool) bool {
	qh := p.QuietHours
	if bypassForCritical || !qh.Enabled || qh.StartHour == qh.EndHour {
		return false
	}
	hour := now.In(Location(qh.Timezone)).Hour()
	if qh.StartHour < qh.EndHour {
		return hour >= qh.StartHour && hour < qh.EndHour
	}
	return hour >= qh.StartHour || hour < qh.EndHour
}

// HasReachedDailyLimit reports whether the channel's quota is used up. A
// counter whose ResetAt has passed counts as zero.
func HasReachedDailyLimit(p Preference, ch events.Channel, now time.Time) bool {
	l, ok := p.DailyLimits.For(ch)
	if !ok || l.Unlimited() {
		return false
	}
	return sentToday(*l, now) >= l.Max
}

// SentToday returns the channel counter after the lazy reset.
func SentToday(p Preference, ch events.Channel, now time.Time) int {
	l, ok := p.DailyLimits.For(ch)
	if !ok {
		return 0
	}
	return sentToday(*l, now)
}

func sentToday(l DailyLimit, now time.Time) int {
	if !now.Before(l.ResetAt) {
		return 0
	}
	return l.SentToday
}

// NextReset returns the next local midnight in tz after now, in UTC.
func NextReset(now time.Time, tz string) time.Time {
	local := now.In(Location(tz))
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, local.Location()).UTC()
}

// Location loads tz, falling back to UTC for empty or unknown names.
func Location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// reserveLocked applies an increment-and-check to p in place. It is the
// in-memory counterpart of the conditional updates MongoStore issues.
func reserveLocked(p *Preference, ch events.Channel, now time.Time) bool {
	l, ok := p.DailyLimits.For(ch)
	if !ok {
		return false
	}
	if l.Unlimited() {
		return true
	}
	if !now.Before(l.ResetAt) {
		l.SentToday = 0
		l.ResetAt = NextReset(now, p.Timezone())
	}
	if l.SentToday >= l.Max {
		return false
	}
	l.SentToday++
	return true
}

// releaseLocked gives back a slot taken by reserveLocked in the same day.
// A slot from a day that has already rolled over is gone with that day.
func releaseLocked(p *Preference, ch events.Channel, now time.Time) {
	l, ok := p.DailyLimits.For(ch)
	if !ok || l.Unlimited() || !now.Before(l.ResetAt) || l.SentToday <= 0 {
		return
	}
	l.SentToday--
}
