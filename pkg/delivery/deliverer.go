package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/directory"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

type (
	// Records is satisfied by *notifications.Manager.
	Records interface {
		Get(ctx context.Context, userID, notifID string) (*notifications.Notification, error)
		MarkChannel(ctx context.Context, notifID string, ch events.Channel, to notifications.ChannelStatus, reason string) (notifications.OverallStatus, error)
	}

	// UserFinder is satisfied by every directory.Directory.
	UserFinder interface {
		FindByID(ctx context.Context, id string) (directory.User, error)
	}

	// PushSender is satisfied by *push.Sender.
	PushSender interface {
		Send(ctx context.Context, tokens []string, msg push.Message) (push.Result, error)
	}

	// SMSSender is satisfied by *sms.Sender.
	SMSSender interface {
		Send(ctx context.Context, phone, text string) (string, error)
	}

	// WebhookSender is satisfied by *webhook.Sender.
	WebhookSender interface {
		Send(ctx context.Context, endpoint string, data any, opts ...webhook.SendOption) (webhook.Result, error)
	}
)

// Deps are the collaborators of a Deliverer. Records and Users are required;
// a channel without a sender gets no job handler.
type Deps struct {
	Records Records
	Users   UserFinder
	Email   email.EmailSender
	Push    PushSender
	SMS     SMSSender
	Webhook WebhookSender
}

// sendFunc delivers one notification to one recipient over one channel.
type sendFunc func(ctx context.Context, n *notifications.Notification, u directory.User) error

// Deliverer runs channel delivery jobs.
type Deliverer struct {
	records Records
	users   UserFinder
	senders map[events.Channel]sendFunc
	deps    Deps
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Deliverer.
type Option func(*Deliverer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deliverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(d *Deliverer) {
		if cfg.WebhookTimeout <= 0 {
			cfg.WebhookTimeout = d.cfg.WebhookTimeout
		}
		d.cfg = cfg
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Deliverer) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a Deliverer.
func New(deps Deps, opts ...Option) (*Deliverer, error) {
	if deps.Records == nil || deps.Users == nil {
		return nil, fmt.Errorf("%w: records and users are required", ErrMissingDependency)
	}

	d := &Deliverer{
		records: deps.Records,
		users:   deps.Users,
		deps:    deps,
		cfg:     DefaultConfig(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.Component("delivery"))

	d.senders = make(map[events.Channel]sendFunc)
	if deps.Email != nil {
		d.senders[events.ChannelEmail] = d.sendEmail
	}
	if deps.Push != nil {
		d.senders[events.ChannelPush] = d.sendPush
	}
	if deps.SMS != nil {
		d.senders[events.ChannelSMS] = d.sendSMS
	}
	if deps.Webhook != nil {
		d.senders[events.ChannelWebhook] = d.sendWebhook
	}
	return d, nil
}

// Channels returns the channels with a configured sender, in stable order.
func (d *Deliverer) Channels() []events.Channel {
	var out []events.Channel
	for _, ch := range events.AllChannels() {
		if _, ok := d.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Handlers returns one deliver.<channel> job handler per configured channel.
func (d *Deliverer) Handlers() []queue.Handler {
	var handlers []queue.Handler
	for _, ch := range d.Channels() {
		handlers = append(handlers, queue.NewJobHandler[dispatch.DeliveryPayload](dispatch.JobName(ch),
			func(ctx context.Context, p dispatch.DeliveryPayload) error {
				return d.Deliver(ctx, ch, p)
			},
		))
	}
	return handlers
}

// Deliver sends one notification over ch. It returns nil when the channel is
// already settled, so redelivered jobs do not send twice.
func (d *Deliverer) Deliver(ctx context.Context, ch events.Channel, p dispatch.DeliveryPayload) error {
	if p.NotificationID == "" || p.UserID == "" {
		return queue.Permanent(ErrInvalidPayload)
	}

	n, err := d.records.Get(ctx, p.UserID, p.NotificationID)
	if err != nil {
		if errors.Is(err, notifications.ErrNotificationNotFound) {
			return queue.Permanent(errors.Join(ErrNotificationGone, err))
		}
		return errors.Join(ErrLoadNotification, err)
	}

	st, ok := n.Channels[ch]
	if !ok || !st.Enabled || st.Status != notifications.StatusPending {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "channel already settled",
			logger.NotificationID(n.ID),
			logger.Channel(string(ch)),
		)
		return nil
	}
	if n.OverallStatus == notifications.OverallExpired || n.IsExpired(d.now()) {
		return d.fail(ctx, n, ch, "notification expired before delivery")
	}

	send, ok := d.senders[ch]
	if !ok {
		return d.fail(ctx, n, ch, ErrChannelDisabled.Error())
	}

	user, err := d.users.FindByID(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return d.fail(ctx, n, ch, err.Error())
		}
		return errors.Join(ErrLoadRecipient, err)
	}
	if !user.IsActive {
		return d.fail(ctx, n, ch, "recipient is inactive")
	}

	start := d.now()
	err = send(ctx, n, user)
	switch {
	case err == nil:
		d.logger.LogAttrs(ctx, slog.LevelInfo, "notification delivered",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
			logger.Channel(string(ch)),
			logger.Duration(d.now().Sub(start)),
		)
		return d.mark(ctx, n.ID, ch, notifications.StatusSent, "")
	case errors.Is(err, ErrNoAddress):
		return d.fail(ctx, n, ch, err.Error())
	case queue.IsPermanent(err):
		if ferr := d.fail(ctx, n, ch, err.Error()); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}

	if info, ok := queue.JobFromContext(ctx); ok && info.LastAttempt() {
		if ferr := d.fail(ctx, n, ch, err.Error()); ferr != nil {
			return errors.Join(err, ferr)
		}
	}
	d.logger.LogAttrs(ctx, slog.LevelWarn, "notification delivery failed",
		logger.NotificationID(n.ID),
		logger.Channel(string(ch)),
		logger.Error(err),
	)
	return err
}

// DeadLetterHook marks the channel of a dead-lettered delivery job failed.
// Jobs that are not deliver.<channel> jobs are ignored.
func (d *Deliverer) DeadLetterHook() queue.DeadLetterHook {
	return func(ctx context.Context, job queue.Job, cause error) {
		ch, ok := dispatch.ChannelFromJob(job.Name)
		if !ok {
			return
		}
		var p dispatch.DeliveryPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil || p.NotificationID == "" {
			d.logger.LogAttrs(ctx, slog.LevelError, "dead delivery job has no usable payload",
				logger.JobID(job.ID),
				logger.JobName(job.Name),
			)
			return
		}
		reason := job.LastError
		if cause != nil {
			reason = cause.Error()
		}
		if err := d.mark(ctx, p.NotificationID, ch, notifications.StatusFailed, reason); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "failed to mark dead delivery job",
				logger.JobID(job.ID),
				logger.NotificationID(p.NotificationID),
				logger.Error(err),
			)
		}
	}
}

func (d *Deliverer) fail(ctx context.Context, n *notifications.Notification, ch events.Channel, reason string) error {
	d.logger.LogAttrs(ctx, slog.LevelWarn, "notification not delivered",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.Channel(string(ch)),
		slog.String("reason", reason),
	)
	return d.mark(ctx, n.ID, ch, notifications.StatusFailed, reason)
}

// mark records a status transition. A conflicting transition means another
// attempt already settled the channel and is not an error.
func (d *Deliverer) mark(ctx context.Context, notifID string, ch events.Channel, to notifications.ChannelStatus, reason string) error {
	overall, err := d.records.MarkChannel(ctx, notifID, ch, to, reason)
	switch {
	case err == nil:
		d.logger.LogAttrs(ctx, slog.LevelDebug, "channel status updated",
			logger.NotificationID(notifID),
			logger.Channel(string(ch)),
			slog.String("status", string(to)),
			slog.String("overall_status", string(overall)),
		)
		return nil
	case errors.Is(err, notifications.ErrStatusConflict), errors.Is(err, notifications.ErrChannelNotEnabled):
		return nil
	}
	return errors.Join(ErrUpdateStatus, err)
}
