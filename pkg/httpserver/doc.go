// Package httpserver runs the operational HTTP surface of a process: an
// http.Server with configurable timeouts and graceful shutdown, plus a chi
// router exposing liveness and readiness endpoints.
//
// Run blocks until its context is cancelled, so it composes with errgroup:
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	g.Go(func() error {
//		return srv.Run(ctx, httpserver.Router(httpserver.RouterOptions{
//			Env:      env,
//			Logger:   log,
//			Draining: srv.Draining,
//			Checks: []httpserver.Check{
//				{Name: "mongo", Probe: mongo.Healthcheck(client)},
//				{Name: "postgres", Probe: pg.Healthcheck(pool)},
//			},
//		}))
//	})
//
// On shutdown /ready answers 503 "draining" for Config.DrainDelay before the
// listener closes. Listen failures are wrapped with ErrListen and shutdown
// failures with ErrShutdown.
package httpserver
