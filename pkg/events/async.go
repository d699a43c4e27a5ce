package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// AsyncListener decouples a slow handler from the emitter. Listen enqueues
// the event into a bounded mailbox and returns immediately; a fixed pool of
// goroutines runs the handler.
type AsyncListener struct {
	handler Listener
	mailbox chan envelope

	workers int
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type envelope struct {
	ctx   context.Context
	event Event
}

// AsyncOption configures an AsyncListener.
type AsyncOption func(*AsyncListener)

// WithWorkers sets the number of handler goroutines (default 4).
func WithWorkers(n int) AsyncOption {
	return func(a *AsyncListener) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithBufferSize sets the mailbox capacity (default 256).
func WithBufferSize(n int) AsyncOption {
	return func(a *AsyncListener) {
		if n > 0 {
			a.mailbox = make(chan envelope, n)
		}
	}
}

// WithHandlerTimeout bounds each handler call. Zero disables the bound.
func WithHandlerTimeout(d time.Duration) AsyncOption {
	return func(a *AsyncListener) { a.timeout = d }
}

// WithAsyncLogger sets the logger.
func WithAsyncLogger(l *slog.Logger) AsyncOption {
	return func(a *AsyncListener) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAsyncListener starts the worker pool for handler.
func NewAsyncListener(handler Listener, opts ...AsyncOption) *AsyncListener {
	a := &AsyncListener{
		handler: handler,
		mailbox: make(chan envelope, 256),
		workers: 4,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.wg.Add(a.workers)
	for range a.workers {
		go a.run()
	}
	return a
}

// Listen satisfies Listener. The handler runs detached from ctx cancellation
// but keeps its values. A full mailbox drops the event and reports
// ErrMailboxFull, which the Bus logs.
func (a *AsyncListener) Listen(ctx context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrListenerClosed
	}

	select {
	case a.mailbox <- envelope{ctx: context.WithoutCancel(ctx), event: e}:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Close stops accepting events and waits until queued events are handled or
// ctx is done.
func (a *AsyncListener) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.mailbox)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncListener) run() {
	defer a.wg.Done()
	for env := range a.mailbox {
		a.handle(env.ctx, env.event)
	}
}

func (a *AsyncListener) handle(ctx context.Context, e Event) {
	var cancel context.CancelFunc
	if a.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
			}
		}()
		return a.handler(ctx, e)
	}()
	if err != nil {
		a.logger.LogAttrs(ctx, slog.LevelError, "async listener failed",
			logger.EventType(string(e.Type)),
			logger.EventID(e.ID),
			logger.Error(err),
		)
	}
}
