package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/directory"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/preferences"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/render"
)

type (
	// RecipientResolver is satisfied by *recipients.Resolver.
	RecipientResolver interface {
		Resolve(ctx context.Context, e events.Event) []string
	}

	// PreferenceGate is satisfied by *preferences.Engine.
	PreferenceGate interface {
		Classify(ctx context.Context, t events.Type) (events.Category, events.NotificationType, bool)
		Load(ctx context.Context, userID string) (preferences.Preference, error)
		Candidates(p preferences.Preference, cat events.Category, nt events.NotificationType, priority events.Priority, requested []events.Channel, now time.Time) ([]events.Channel, map[events.Channel]preferences.Reason)
		Reserve(ctx context.Context, p preferences.Preference, ch events.Channel, now time.Time) (bool, error)
		Release(ctx context.Context, p preferences.Preference, ch events.Channel, now time.Time) error
	}

	// Renderer is satisfied by *render.Renderer.
	Renderer interface {
		Render(t events.Type, payload events.Payload, recipient directory.User) render.Content
	}

	// UserFinder is satisfied by every directory.Directory.
	UserFinder interface {
		FindByID(ctx context.Context, id string) (directory.User, error)
	}

	// Records is satisfied by *notifications.Manager.
	Records interface {
		Exists(ctx context.Context, userID, idempotencyKey string) (bool, error)
		Send(ctx context.Context, notif notifications.Notification) (notifications.Notification, error)
		RefreshOverallStatus(ctx context.Context, notifID string) (notifications.OverallStatus, error)
	}

	// Enqueuer is satisfied by *queue.Enqueuer.
	Enqueuer interface {
		EnqueueBatch(ctx context.Context, items []queue.BatchItem) ([]uuid.UUID, error)
	}
)

// Deps are the collaborators of an Orchestrator. All are required.
type Deps struct {
	Resolver    RecipientResolver
	Preferences PreferenceGate
	Renderer    Renderer
	Users       UserFinder
	Records     Records
	Jobs        Enqueuer
}

func (d Deps) validate() error {
	var missing []string
	if d.Resolver == nil {
		missing = append(missing, "resolver")
	}
	if d.Preferences == nil {
		missing = append(missing, "preferences")
	}
	if d.Renderer == nil {
		missing = append(missing, "renderer")
	}
	if d.Users == nil {
		missing = append(missing, "users")
	}
	if d.Records == nil {
		missing = append(missing, "records")
	}
	if d.Jobs == nil {
		missing = append(missing, "jobs")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingDependency, missing)
	}
	return nil
}

// SkipReason tells why a recipient got no notification.
type SkipReason string

const (
	SkipUnclassified SkipReason = "unclassified"
	SkipExpired      SkipReason = "expired"
	SkipDuplicate    SkipReason = "duplicate"
	SkipNoChannels   SkipReason = "no_channels"
)

// Outcome reports what DispatchTo did for one recipient.
type Outcome struct {
	UserID         string
	NotificationID string
	Skipped        SkipReason
	// Channels are the channels that passed every gate.
	Channels []events.Channel
	Excluded map[events.Channel]preferences.Reason
	// Jobs is the number of delivery jobs enqueued.
	Jobs          int
	OverallStatus notifications.OverallStatus
}

// Orchestrator runs the dispatch pipeline.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if cfg.Queue != "" {
			o.cfg.Queue = cfg.Queue
		}
		if cfg.MaxAttempts > 0 {
			o.cfg.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.Concurrency > 0 {
			o.cfg.Concurrency = cfg.Concurrency
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		deps:   deps,
		cfg:    DefaultConfig(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(logger.Component("dispatch"))
	return o, nil
}

// Handle dispatches e to every resolved recipient. It has the events.Listener
// signature. Per-recipient failures are logged and never returned, so one
// bad recipient cannot affect emitters or other recipients.
func (o *Orchestrator) Handle(ctx context.Context, e events.Event) error {
	recipients := o.deps.Resolver.Resolve(ctx, e)
	if len(recipients) == 0 {
		o.logger.LogAttrs(ctx, slog.LevelDebug, "no recipients for event",
			logger.EventType(string(e.Type)),
			logger.EventID(e.ID),
		)
		return nil
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, userID := range recipients {
		g.Go(func() error {
			if _, err := o.DispatchTo(ctx, e, userID); err != nil {
				o.logger.LogAttrs(ctx, slog.LevelError, "failed to dispatch notification",
					logger.EventType(string(e.Type)),
					logger.EventID(e.ID),
					logger.UserID(userID),
					logger.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	o.logger.LogAttrs(ctx, slog.LevelDebug, "event dispatched",
		logger.EventType(string(e.Type)),
		logger.EventID(e.ID),
		logger.Count("recipients", len(recipients)),
	)
	return nil
}

// DispatchTo runs the pipeline for a single recipient.
func (o *Orchestrator) DispatchTo(ctx context.Context, e events.Event, userID string) (Outcome, error) {
	out := Outcome{UserID: userID}
	if userID == "" {
		return out, ErrEmptyUserID
	}
	now := o.now()

	cat, nt, ok := o.deps.Preferences.Classify(ctx, e.Type)
	if !ok {
		out.Skipped = SkipUnclassified
		return out, nil
	}

	if e.Expired(now) {
		out.Skipped = SkipExpired
		o.logger.LogAttrs(ctx, slog.LevelDebug, "event expired before dispatch",
			logger.EventType(string(e.Type)),
			logger.UserID(userID),
		)
		return out, nil
	}

	if key := e.Metadata.IdempotencyKey; key != "" {
		exists, err := o.deps.Records.Exists(ctx, userID, key)
		if err != nil {
			return out, errors.Join(ErrIdempotencyCheck, err)
		}
		if exists {
			out.Skipped = SkipDuplicate
			o.logger.LogAttrs(ctx, slog.LevelDebug, "duplicate notification skipped",
				logger.EventType(string(e.Type)),
				logger.UserID(userID),
				slog.String("idempotency_key", key),
			)
			return out, nil
		}
	}

	prefs, err := o.deps.Preferences.Load(ctx, userID)
	if err != nil {
		return out, errors.Join(ErrLoadPreferences, err)
	}

	cat, nt = o.gateFor(ctx, e.Type, prefs, cat, nt)
	candidates, excluded := o.deps.Preferences.Candidates(prefs, cat, nt, e.Priority, e.Channels, now)
	if excluded == nil {
		excluded = make(map[events.Channel]preferences.Reason)
	}
	out.Excluded = excluded
	out.Channels = o.reserve(ctx, prefs, candidates, excluded, now)

	if len(out.Channels) == 0 {
		out.Skipped = SkipNoChannels
		o.logger.LogAttrs(ctx, slog.LevelDebug, "no channels left after preference gates",
			logger.EventType(string(e.Type)),
			logger.UserID(userID),
			slog.Any("excluded", excluded),
		)
		return out, nil
	}

	user, err := o.deps.Users.FindByID(ctx, userID)
	if err != nil {
		// content falls back to generic greetings
		o.logger.LogAttrs(ctx, slog.LevelWarn, "recipient lookup failed, rendering without profile",
			logger.UserID(userID),
			logger.Error(err),
		)
		user = directory.User{ID: userID}
	}
	content := o.deps.Renderer.Render(e.Type, e.Payload, user)

	stored, err := o.deps.Records.Send(ctx, o.record(e, userID, content, out.Channels, now))
	if err != nil {
		o.release(ctx, prefs, out.Channels, now)
		if errors.Is(err, notifications.ErrDuplicateNotification) {
			out.Skipped = SkipDuplicate
			return out, nil
		}
		return out, errors.Join(ErrStoreNotification, err)
	}
	out.NotificationID = stored.ID
	out.OverallStatus = stored.OverallStatus

	out.Jobs = o.enqueue(ctx, stored, e.Priority)

	status, err := o.deps.Records.RefreshOverallStatus(ctx, stored.ID)
	if err != nil {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "failed to refresh overall status",
			logger.NotificationID(stored.ID),
			logger.Error(err),
		)
	} else {
		out.OverallStatus = status
	}

	o.logger.LogAttrs(ctx, slog.LevelInfo, "notification dispatched",
		logger.NotificationID(stored.ID),
		logger.EventType(string(e.Type)),
		logger.UserID(userID),
		logger.Channels(out.Channels),
		logger.Count("jobs", out.Jobs),
	)
	return out, nil
}

// reserve takes a daily quota slot for every candidate. A channel whose
// quota cannot be checked is left out.
func (o *Orchestrator) reserve(ctx context.Context, prefs preferences.Preference, candidates []events.Channel, excluded map[events.Channel]preferences.Reason, now time.Time) []events.Channel {
	var enabled []events.Channel
	for _, ch := range candidates {
		ok, err := o.deps.Preferences.Reserve(ctx, prefs, ch, now)
		switch {
		case err != nil:
			excluded[ch] = preferences.ReasonQuotaUnavailable
			o.logger.LogAttrs(ctx, slog.LevelError, "failed to reserve daily quota",
				logger.UserID(prefs.UserID),
				logger.Channel(string(ch)),
				logger.Error(err),
			)
		case !ok:
			excluded[ch] = preferences.ReasonDailyLimit
		default:
			enabled = append(enabled, ch)
		}
	}
	return enabled
}

// release hands back the slots reserved for a notification that was never
// stored. It runs even when ctx is already cancelled.
func (o *Orchestrator) release(ctx context.Context, prefs preferences.Preference, channels []events.Channel, now time.Time) {
	ctx = context.WithoutCancel(ctx)
	for _, ch := range channels {
		if err := o.deps.Preferences.Release(ctx, prefs, ch, now); err != nil {
			o.logger.LogAttrs(ctx, slog.LevelError, "failed to release daily quota",
				logger.UserID(prefs.UserID),
				logger.Channel(string(ch)),
				logger.Error(err),
			)
		}
	}
}

// gateFor returns the category and type the channel flags are read from.
// Premium content reaches active premium holders through their new-insights
// opt-in when they have no premium-insights channel on, so it is gated on
// those flags too.
func (o *Orchestrator) gateFor(ctx context.Context, t events.Type, p preferences.Preference, cat events.Category, nt events.NotificationType) (events.Category, events.NotificationType) {
	def, ok := events.Lookup(t)
	if !ok || !def.Premium {
		return cat, nt
	}
	if flags, _ := p.Categories.Flags(cat, nt); flags != nil && flags.Any() {
		return cat, nt
	}
	u, err := o.deps.Users.FindByID(ctx, p.UserID)
	if err != nil || !u.IsActive || !u.PremiumActive {
		return cat, nt
	}
	return events.CategoryContent, events.TypeNewInsights
}

func (o *Orchestrator) record(e events.Event, userID string, c render.Content, enabled []events.Channel, now time.Time) notifications.Notification {
	return notifications.Notification{
		UserID:   userID,
		Type:     e.Type,
		Priority: e.Priority,
		Title:    c.Title,
		Body:     c.Body,
		Rich: notifications.Rich{
			ActionURL:  c.Rich.ActionURL,
			ActionText: c.Rich.ActionText,
			ImageURL:   c.Rich.ImageURL,
		},
		Channels: notifications.NewChannels(e.Channels, enabled, now),
		Metadata: notifications.Metadata{
			EventID:        e.ID,
			Source:         e.Metadata.Source,
			IdempotencyKey: e.Metadata.IdempotencyKey,
			ExpiresAt:      e.Metadata.ExpiresAt,
			Payload:        e.Payload.Clone(),
		},
		CreatedAt: now,
	}
}

// enqueue submits one delivery job per enabled external channel. A failure
// leaves the channels pending and is only logged.
func (o *Orchestrator) enqueue(ctx context.Context, n notifications.Notification, priority events.Priority) int {
	payload := DeliveryPayload{NotificationID: n.ID, UserID: n.UserID}
	opts := []queue.EnqueueOption{
		queue.WithQueue(o.cfg.Queue),
		queue.WithPriority(JobPriority(priority)),
		queue.WithMaxAttempts(o.cfg.MaxAttempts),
	}

	var items []queue.BatchItem
	for _, ch := range n.EnabledChannels() {
		if ch == events.ChannelInApp {
			continue
		}
		items = append(items, queue.BatchItem{Name: JobName(ch), Payload: payload, Options: opts})
	}
	if len(items) == 0 {
		return 0
	}

	if _, err := o.deps.Jobs.EnqueueBatch(ctx, items); err != nil {
		o.logger.LogAttrs(ctx, slog.LevelError, "failed to enqueue delivery jobs, channels stay pending",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
			logger.Error(err),
		)
		return 0
	}
	return len(items)
}
