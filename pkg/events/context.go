package events

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

type eventCtxKey struct{}

type eventRef struct {
	id  string
	typ Type
}

// ContextWithEvent marks ctx as handling e. The bus does this before calling
// each listener, so work done on the event's behalf can be traced back to it.
func ContextWithEvent(ctx context.Context, e Event) context.Context {
	return context.WithValue(ctx, eventCtxKey{}, eventRef{id: e.ID, typ: e.Type})
}

// EventFromContext returns the id and type of the event ctx is handling.
func EventFromContext(ctx context.Context) (id string, t Type, ok bool) {
	ref, ok := ctx.Value(eventCtxKey{}).(eventRef)
	if !ok {
		return "", "", false
	}
	return ref.id, ref.typ, true
}

// LogExtractor is a logger.ContextExtractor adding the event id to every
// record logged while an event is handled.
//
//	log := logger.New(logger.WithContextExtractors(events.LogExtractor))
func LogExtractor(ctx context.Context) (slog.Attr, bool) {
	id, _, ok := EventFromContext(ctx)
	if !ok || id == "" {
		return slog.Attr{}, false
	}
	return logger.EventID(id), true
}
