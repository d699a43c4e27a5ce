package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// TopicNotification is the catch-all topic every event is published on.
const TopicNotification = "notification"

// Listener handles an event. Returned errors are logged by the bus.
type Listener func(ctx context.Context, e Event) error

type subscription struct {
	id       uint64
	listener Listener
}

// Bus is an in-process publish/subscribe channel. The zero value is not
// usable; create one with NewBus and pass it to producers explicitly.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]subscription
	nextID    uint64

	source string
	now    func() time.Time
	logger *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the logger for the Bus.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDefaultSource sets Metadata.Source for events emitted without one.
func WithDefaultSource(source string) BusOption {
	return func(b *Bus) { b.source = source }
}

// WithBusClock overrides the clock used to stamp events.
func WithBusClock(now func() time.Time) BusOption {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		listeners: make(map[string][]subscription),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers l on topic. A topic is either an event Type or
// TopicNotification. The returned func removes the registration.
func (b *Bus) Subscribe(topic string, l Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[topic] = append(b.listeners[topic], subscription{id: id, listener: l})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.listeners[topic]
			for i, s := range subs {
				if s.id == id {
					b.listeners[topic] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// SubscribeType is Subscribe for a single event type.
func (b *Bus) SubscribeType(t Type, l Listener) (unsubscribe func()) {
	return b.Subscribe(string(t), l)
}

// Emit builds an event of type t and publishes it. Priority and channels
// default to the type's definition; unknown types are still published but
// carry medium priority and the in-app channel only.
func (b *Bus) Emit(ctx context.Context, t Type, payload Payload, opts ...EmitOption) Event {
	def, ok := Lookup(t)
	if !ok {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "emitting event of unknown type",
			logger.EventType(string(t)),
		)
		def = fallback(t)
	}

	o := emitOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	e := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: b.now(),
		Priority:  def.Priority,
		Channels:  def.Channels,
		Payload:   payload,
		Metadata:  o.metadata,
	}
	if o.priority.Valid() {
		e.Priority = o.priority
	}
	if len(o.channels) > 0 {
		e.Channels = o.channels
	}
	if e.Metadata.Source == "" {
		e.Metadata.Source = b.source
	}

	b.Publish(ctx, e)
	return e
}

// Publish delivers an already built event to the listeners of its type topic
// and then to the catch-all topic.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.deliver(ctx, string(e.Type), e)
	b.deliver(ctx, TopicNotification, e)
}

func (b *Bus) deliver(ctx context.Context, topic string, e Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.listeners[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.call(ctx, s.listener, e); err != nil {
			b.logger.LogAttrs(ctx, slog.LevelError, "event listener failed",
				logger.Topic(topic),
				logger.EventType(string(e.Type)),
				logger.EventID(e.ID),
				logger.Error(err),
			)
		}
	}
}

func (b *Bus) call(ctx context.Context, l Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
		}
	}()
	// each listener gets its own payload copy
	e.Payload = e.Payload.Clone()
	return l(ContextWithEvent(ctx, e), e)
}
