package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/preferences"
)

// Source is the Metadata.Source of every emitted event.
const Source = "reminders"

// Job names of the periodic runs.
const (
	JobExpiringSoon        = "reminders.expiring-soon"
	JobExpiringToday       = "reminders.expiring-today"
	JobExpired             = "reminders.expired"
	JobWeeklyDigest        = "reminders.weekly-digest"
	JobExpireNotifications = "reminders.expire-notifications"
)

type (
	// Emitter is satisfied by *events.Bus.
	Emitter interface {
		Emit(ctx context.Context, t events.Type, payload events.Payload, opts ...events.EmitOption) events.Event
	}

	// Audience is satisfied by *preferences.Engine.
	Audience interface {
		OptedIn(ctx context.Context, cat events.Category, nt events.NotificationType) ([]preferences.Preference, error)
	}

	// Expirer is satisfied by *notifications.Manager.
	Expirer interface {
		ExpireStale(ctx context.Context) (int64, error)
	}
)

// Deps are the collaborators of a Runner. All are required.
type Deps struct {
	Subscriptions SubscriptionSource
	Content       ContentSource
	Audience      Audience
	Emitter       Emitter
	Expirer       Expirer
}

func (d Deps) validate() error {
	var missing []string
	if d.Subscriptions == nil {
		missing = append(missing, "subscriptions")
	}
	if d.Content == nil {
		missing = append(missing, "content")
	}
	if d.Audience == nil {
		missing = append(missing, "audience")
	}
	if d.Emitter == nil {
		missing = append(missing, "emitter")
	}
	if d.Expirer == nil {
		missing = append(missing, "expirer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingDependency, missing)
	}
	return nil
}

// Runner executes the periodic reminder runs. It keeps no state between runs.
type Runner struct {
	deps   Deps
	cfg    Config
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(r *Runner) { r.cfg = cfg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner.
func New(deps Deps, opts ...Option) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		deps:   deps,
		cfg:    DefaultConfig(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	tz := r.cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Join(ErrInvalidTimezone, err)
	}
	r.loc = loc
	r.logger = r.logger.With(logger.Component("reminders"))
	return r, nil
}

// IdempotencyKey builds the dedup key of one emission.
func IdempotencyKey(id string, threshold int, day time.Time) string {
	return id + ":" + strconv.Itoa(threshold) + ":" + day.Format(time.DateOnly)
}

// ExpiringSoon emits subscription:expiring-soon for subscriptions ending in
// [today+N, today+N+1d) for every configured N.
func (r *Runner) ExpiringSoon(ctx context.Context) error {
	today := r.today()
	var errs []error
	for _, n := range r.cfg.ExpiringSoonDays {
		from := today.AddDate(0, 0, n)
		err := r.window(ctx, JobExpiringSoon, from, from.AddDate(0, 0, 1), func(s Subscription) bool {
			if s.Status == StatusExpired {
				return false
			}
			return r.emit(ctx, events.SubscriptionExpiringSoon, s, n, today)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%d days ahead: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// ExpiringToday emits the critical subscription:expiring-today for
// subscriptions that end between now and the next local midnight. It runs
// hourly; the idempotency key keeps it to one notification per day.
func (r *Runner) ExpiringToday(ctx context.Context) error {
	now := r.now()
	today := r.today()
	tomorrow := today.AddDate(0, 0, 1)
	return r.window(ctx, JobExpiringToday, now, tomorrow, func(s Subscription) bool {
		if s.Status == StatusExpired {
			return false
		}
		return r.emit(ctx, events.SubscriptionExpiringToday, s, 0, today, events.WithExpiresAt(tomorrow))
	})
}

// Expired emits subscription:expired-reminder for subscriptions that ended
// N days ago for every configured N.
func (r *Runner) Expired(ctx context.Context) error {
	today := r.today()
	var errs []error
	for _, n := range r.cfg.ExpiredDays {
		from := today.AddDate(0, 0, -n)
		err := r.window(ctx, JobExpired, from, from.AddDate(0, 0, 1), func(s Subscription) bool {
			return r.emit(ctx, events.SubscriptionExpiredReminder, s, n, today)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%d days ago: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// WeeklyDigest emits digest:weekly to every user opted into the digest,
// listing the top recent content that matches the user's interests. Users
// with nothing to read are skipped.
func (r *Runner) WeeklyDigest(ctx context.Context) error {
	now := r.now()
	today := r.today()

	audience, err := r.deps.Audience.OptedIn(ctx, events.CategoryContent, events.TypeDigest)
	if err != nil {
		return errors.Join(ErrAudienceQuery, err)
	}
	if len(audience) == 0 {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "no users opted into the weekly digest")
		return nil
	}

	// Over-fetch so interest filtering still leaves a full digest.
	items, err := r.deps.Content.Top(ctx, now.Add(-r.cfg.DigestLookback), r.cfg.DigestSize*4)
	if err != nil {
		return errors.Join(ErrContentQuery, err)
	}

	sent := 0
	for _, p := range audience {
		picked := personalize(p, items, r.cfg.DigestSize)
		if len(picked) == 0 {
			continue
		}
		payload := events.Payload{
			events.KeyUserID: p.UserID,
			events.KeyItems:  digestItems(picked),
		}
		key := IdempotencyKey(p.UserID+":digest", 0, today)
		if r.safeEmit(ctx, events.DigestWeekly, payload, events.WithSource(Source), events.WithIdempotencyKey(key)) {
			sent++
		}
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "weekly digest emitted",
		logger.JobName(JobWeeklyDigest),
		logger.Count("audience", len(audience)),
		logger.Count("emitted", sent),
	)
	return nil
}

// ExpireNotifications marks notifications past their expiry as expired.
func (r *Runner) ExpireNotifications(ctx context.Context) error {
	if _, err := r.deps.Expirer.ExpireStale(ctx); err != nil {
		return errors.Join(ErrExpireSweep, err)
	}
	return nil
}

// window loads subscriptions ending in [from, to) and hands each to emit.
func (r *Runner) window(ctx context.Context, job string, from, to time.Time, emit func(Subscription) bool) error {
	subs, err := r.deps.Subscriptions.EndingBetween(ctx, from, to)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to query subscriptions",
			logger.JobName(job),
			slog.Time("from", from),
			slog.Time("to", to),
			logger.Error(err),
		)
		return errors.Join(ErrSubscriptionQuery, err)
	}

	sent := 0
	for _, s := range subs {
		if emit(s) {
			sent++
		}
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "subscription reminders emitted",
		logger.JobName(job),
		slog.Time("from", from),
		logger.Count("matched", len(subs)),
		logger.Count("emitted", sent),
	)
	return nil
}

func (r *Runner) emit(ctx context.Context, t events.Type, s Subscription, threshold int, day time.Time, opts ...events.EmitOption) bool {
	if s.UserID == "" {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "subscription without user skipped",
			logger.EventType(string(t)),
			slog.String("subscription_id", s.ID),
		)
		return false
	}
	payload := events.Payload{
		events.KeyUserID:         s.UserID,
		events.KeySubscriptionID: s.ID,
		events.KeyTier:           s.Tier,
		events.KeyEndDate:        s.EndDate,
		events.KeyDaysLeft:       threshold,
	}
	opts = append(opts,
		events.WithSource(Source),
		events.WithIdempotencyKey(IdempotencyKey(s.ID, threshold, day)),
	)
	return r.safeEmit(ctx, t, payload, opts...)
}

// safeEmit keeps one failing emission from aborting the batch.
func (r *Runner) safeEmit(ctx context.Context, t events.Type, payload events.Payload, opts ...events.EmitOption) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to emit reminder",
				logger.EventType(string(t)),
				logger.UserID(payload.UserID()),
				slog.Any("panic", rec),
			)
			ok = false
		}
	}()
	r.deps.Emitter.Emit(ctx, t, payload, opts...)
	return true
}

// today returns the start of the current day in the configured timezone.
func (r *Runner) today() time.Time {
	local := r.now().In(r.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

func personalize(p preferences.Preference, items []ContentItem, limit int) []ContentItem {
	premium := p.Categories.Content.PremiumInsights.Any()
	var out []ContentItem
	for _, it := range items {
		if it.Premium && !premium {
			continue
		}
		if !p.Categories.Content.Interested(it.Category) {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func digestItems(items []ContentItem) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			events.KeyInsightID: it.ID,
			events.KeyTitle:     it.Title,
			events.KeyCategory:  it.Category,
		})
	}
	return out
}
