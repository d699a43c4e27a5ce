package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/environment"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Check is one named readiness probe, e.g. mongo.Healthcheck(client).
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// HealthReport is the body of the readiness endpoint.
type HealthReport struct {
	Status string            `json:"status"`
	Env    string            `json:"env,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
	StatusDraining    = "draining"
)

// LivenessHandler answers 200 while the process serves HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, http.StatusOK, HealthReport{
			Status: StatusOK,
			Env:    environment.FromContext(r.Context()).String(),
		})
	}
}

// ReadinessHandler runs every check concurrently, each bounded by timeout,
// and answers 503 when any of them fails. Once draining reports true it
// answers 503 without running the checks.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, draining func() bool, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if draining != nil && draining() {
			writeReport(w, http.StatusServiceUnavailable, HealthReport{
				Status: StatusDraining,
				Env:    environment.FromContext(r.Context()).String(),
			})
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		report := HealthReport{
			Status: StatusOK,
			Env:    environment.FromContext(r.Context()).String(),
			Checks: make(map[string]string, len(checks)),
		}
		var mu sync.Mutex
		var g errgroup.Group
		for _, c := range checks {
			g.Go(func() error {
				err := c.Probe(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Status = StatusUnavailable
					report.Checks[c.Name] = err.Error()
					log.LogAttrs(ctx, slog.LevelError, "readiness check failed",
						slog.String("check", c.Name),
						logger.Error(err),
					)
					return nil
				}
				report.Checks[c.Name] = StatusOK
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if report.Status != StatusOK {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, report)
	}
}

func writeReport(w http.ResponseWriter, code int, report HealthReport) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
