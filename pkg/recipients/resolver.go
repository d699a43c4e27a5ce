// Package recipients finds the users an event should be delivered to.
package recipients

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/directory"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/preferences"
)

// OptInLister lists preference documents opted into a notification type.
// *preferences.Engine satisfies it.
type OptInLister interface {
	OptedIn(ctx context.Context, cat events.Category, nt events.NotificationType) ([]preferences.Preference, error)
}

// Resolver maps an event to recipient user ids using the strategy of the
// event type's definition.
type Resolver struct {
	dir    directory.Directory
	prefs  OptInLister
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver.
func NewResolver(dir directory.Directory, prefs OptInLister, opts ...Option) *Resolver {
	r := &Resolver{dir: dir, prefs: prefs, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the recipients of e in a stable order without duplicates.
// Missing data and lookup failures yield an empty list; they are logged, never
// returned.
func (r *Resolver) Resolve(ctx context.Context, e events.Event) []string {
	def, ok := events.Lookup(e.Type)
	if !ok {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "no recipient strategy for event type",
			logger.EventType(string(e.Type)),
		)
		return nil
	}

	var (
		ids []string
		err error
	)
	switch def.Strategy {
	case events.StrategyDirect:
		if id := e.Payload.UserID(); id != "" {
			ids = []string{id}
		}
	case events.StrategyInterested:
		ids, err = r.interested(ctx, def, e.Payload.String(events.KeyCategory))
	case events.StrategyRoles:
		ids, err = r.byRoles(ctx, def.Roles)
	}
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to resolve recipients",
			logger.EventType(string(e.Type)),
			slog.String("strategy", def.Strategy.String()),
			logger.Error(err),
		)
		return nil
	}
	if len(ids) == 0 {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "event resolved to no recipients",
			logger.EventType(string(e.Type)),
			slog.String("strategy", def.Strategy.String()),
		)
	}
	return unique(ids)
}

// interested returns users opted into the event's notification type whose
// content interests match category. Premium content additionally reaches
// users opted into new insights who already hold premium access.
func (r *Resolver) interested(ctx context.Context, def events.Definition, category string) ([]string, error) {
	opted, err := r.prefs.OptedIn(ctx, def.Category, def.NotificationType)
	if err != nil {
		return nil, err
	}
	ids := matching(opted, category)
	if !def.Premium {
		return ids, nil
	}

	general, err := r.prefs.OptedIn(ctx, events.CategoryContent, events.TypeNewInsights)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	var rest []string
	for _, id := range matching(general, category) {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	if len(rest) == 0 {
		return ids, nil
	}

	users, err := r.dir.FindByIDs(ctx, rest)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.IsActive && u.PremiumActive {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (r *Resolver) byRoles(ctx context.Context, roles []string) ([]string, error) {
	users, err := r.dir.FindByRoles(ctx, roles...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.IsActive {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func matching(prefs []preferences.Preference, category string) []string {
	ids := make([]string, 0, len(prefs))
	for _, p := range prefs {
		if p.Categories.Content.Interested(category) {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func unique(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
