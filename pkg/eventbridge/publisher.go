package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Envelope is the message body published for every event.
type Envelope struct {
	ID        string           `json:"id"`
	Type      events.Type      `json:"type"`
	Category  events.Category  `json:"category,omitempty"`
	Priority  events.Priority  `json:"priority"`
	Channels  []events.Channel `json:"channels"`
	Payload   events.Payload   `json:"payload,omitempty"`
	Metadata  events.Metadata  `json:"metadata"`
	Timestamp time.Time        `json:"timestamp"`
}

// Publisher publishes events to one exchange. It is safe for concurrent use.
type Publisher struct {
	cfg    Config
	conn   *amqp.Connection
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	ch     Channel
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// Dial connects to the broker, declares a durable topic exchange and returns
// a publisher on a fresh channel.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Publisher, error) {
	if cfg.URL == "" || cfg.Exchange == "" {
		return nil, fmt.Errorf("%w: url and exchange are required", ErrInvalidConfig)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.Table{"connection_name": cfg.AppID},
	})
	if err != nil {
		return nil, errors.Join(ErrConnect, err)
	}

	ch, err := openChannel(conn, cfg.Exchange)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Join(ErrConnect, err)
	}

	p := NewPublisher(ch, cfg, opts...)
	p.conn = conn
	p.logger.LogAttrs(ctx, slog.LevelInfo, "connected to broker", logger.Topic(cfg.Exchange))
	return p, nil
}

func openChannel(conn *amqp.Connection, exchange string) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// NewPublisher wraps an open channel. The exchange must already exist.
func NewPublisher(ch Channel, cfg Config, opts ...Option) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		ch:     ch,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("eventbridge"))
	return p
}

// Listen publishes e. It has the events.Listener signature.
func (p *Publisher) Listen(ctx context.Context, e events.Event) error {
	return p.Publish(ctx, e)
}

// Publish sends e to the exchange with RoutingKey(e). A channel closed by
// the broker is reopened once before giving up.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	msg, err := p.message(e)
	if err != nil {
		return errors.Join(ErrPublish, err)
	}
	key := RoutingKey(p.cfg.RoutingPrefix, e.Type)

	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	err = p.ch.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) && p.reopen() {
		err = p.ch.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, msg)
	}
	if err != nil {
		return errors.Join(ErrPublish, err)
	}

	p.logger.LogAttrs(ctx, slog.LevelDebug, "event published",
		logger.EventType(string(e.Type)),
		slog.String("routing_key", key),
	)
	return nil
}

// reopen replaces a dead channel. Callers hold p.mu.
func (p *Publisher) reopen() bool {
	if p.conn == nil || p.conn.IsClosed() {
		return false
	}
	ch, err := openChannel(p.conn, p.cfg.Exchange)
	if err != nil {
		p.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to reopen broker channel", logger.Error(err))
		return false
	}
	_ = p.ch.Close()
	p.ch = ch
	return true
}

func (p *Publisher) message(e events.Event) (amqp.Publishing, error) {
	env := Envelope{
		ID:        e.ID,
		Type:      e.Type,
		Priority:  e.Priority,
		Channels:  e.Channels,
		Payload:   e.Payload,
		Metadata:  e.Metadata,
		Timestamp: e.Timestamp,
	}
	if def, ok := events.Lookup(e.Type); ok {
		env.Category = def.Category
	}
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, err
	}

	correlation := e.Metadata.IdempotencyKey
	if correlation == "" {
		correlation = e.ID
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Priority:      brokerPriority(e.Priority),
		MessageId:     e.ID,
		CorrelationId: correlation,
		Type:          string(e.Type),
		Timestamp:     ts,
		AppId:         p.cfg.AppID,
		Headers: amqp.Table{
			"category": string(env.Category),
			"source":   e.Metadata.Source,
		},
		Body: body,
	}
	if e.Metadata.ExpiresAt != nil {
		ttl := e.Metadata.ExpiresAt.Sub(p.now())
		if ttl <= 0 {
			ttl = time.Millisecond
		}
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
	return msg, nil
}

// Close closes the channel and, when the publisher owns it, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RoutingKey maps an event type onto a dotted routing key:
// "subscription:expiring-soon" becomes "<prefix>.subscription.expiring-soon".
func RoutingKey(prefix string, t events.Type) string {
	key := strings.ReplaceAll(string(t), ":", ".")
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func brokerPriority(p events.Priority) uint8 {
	switch p {
	case events.PriorityCritical:
		return 9
	case events.PriorityHigh:
		return 6
	case events.PriorityLow:
		return 1
	default:
		return 4
	}
}
