package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/pkg/environment"
)

// RouterOptions configures the operational router. Draining is usually
// Server.Draining.
type RouterOptions struct {
	Env          environment.Environment
	Logger       *slog.Logger
	CheckTimeout time.Duration
	Checks       []Check
	Draining     func() bool
}

// Router mounts GET /health (liveness) and GET /ready (readiness).
//
//	r := httpserver.Router(httpserver.RouterOptions{
//		Env:    env,
//		Checks: []httpserver.Check{{Name: "mongo", Probe: mongo.Healthcheck(client)}},
//	})
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if opts.Env != "" {
		r.Use(environment.Middleware(opts.Env))
	}

	r.Get("/health", LivenessHandler())
	r.Get("/ready", ReadinessHandler(opts.Logger, opts.CheckTimeout, opts.Draining, opts.Checks...))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})
	return r
}
