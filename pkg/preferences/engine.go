package preferences

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Reason explains why a channel was excluded from delivery.
type Reason string

const (
	ReasonDisabled   Reason = "disabled"
	ReasonQuietHours Reason = "quiet_hours"
	ReasonDailyLimit Reason = "daily_limit"

	// ReasonQuotaUnavailable is reported when the quota could not be checked.
	ReasonQuotaUnavailable Reason = "quota_unavailable"
)

// Engine combines the pure preference rules with a Store and an optional
// QuotaCounter.
type Engine struct {
	store   Store
	counter QuotaCounter
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithQuotaCounter moves quota reservation from the Store to c.
func WithQuotaCounter(c QuotaCounter) EngineOption {
	return func(e *Engine) { e.counter = c }
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load returns the user's preferences, creating defaults on first access.
func (e *Engine) Load(ctx context.Context, userID string) (Preference, error) {
	return e.store.GetOrCreate(ctx, userID)
}

// Classify maps an event type to its preference category and notification
// type. Unknown types are logged and reported as not classifiable.
func (e *Engine) Classify(ctx context.Context, t events.Type) (events.Category, events.NotificationType, bool) {
	def, ok := events.Lookup(t)
	if !ok {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "no preference category for event type",
			logger.EventType(string(t)),
		)
		return "", "", false
	}
	return def.Category, def.NotificationType, true
}

// Candidates applies the flag and quiet-hours gates to requested and returns
// the channels that passed, plus the reason for each one that did not.
// In-app delivery is never held back by quiet hours.
func (e *Engine) Candidates(p Preference, cat events.Category, nt events.NotificationType, priority events.Priority, requested []events.Channel, now time.Time) ([]events.Channel, map[events.Channel]Reason) {
	quiet := IsInQuietHours(p, now, priority == events.PriorityCritical)
	var out []events.Channel
	excluded := make(map[events.Channel]Reason)
	for _, ch := range requested {
		switch {
		case !IsEnabled(p, cat, nt, ch):
			excluded[ch] = ReasonDisabled
		case quiet && ch != events.ChannelInApp:
			excluded[ch] = ReasonQuietHours
		default:
			out = append(out, ch)
		}
	}
	return out, excluded
}

// Reserve takes one daily quota slot for ch. It is the last gate and the
// only one with a side effect.
func (e *Engine) Reserve(ctx context.Context, p Preference, ch events.Channel, now time.Time) (bool, error) {
	if e.counter == nil {
		return e.store.Reserve(ctx, p.UserID, ch, now)
	}
	l, ok := p.DailyLimits.For(ch)
	if !ok {
		return false, ErrUnknownChannel
	}
	return e.counter.Reserve(ctx, p.UserID, ch, l.Max, NextReset(now, p.Timezone()))
}

// Release gives back a slot taken by Reserve when the delivery it was taken
// for is never recorded.
func (e *Engine) Release(ctx context.Context, p Preference, ch events.Channel, now time.Time) error {
	if e.counter == nil {
		return e.store.Release(ctx, p.UserID, ch, now)
	}
	l, ok := p.DailyLimits.For(ch)
	if !ok {
		return ErrUnknownChannel
	}
	return e.counter.Release(ctx, p.UserID, ch, l.Max, NextReset(now, p.Timezone()))
}

// OptedIn lists users with any channel on for (category, notification type).
func (e *Engine) OptedIn(ctx context.Context, cat events.Category, nt events.NotificationType) ([]Preference, error) {
	return e.store.ListOptedIn(ctx, cat, nt)
}
