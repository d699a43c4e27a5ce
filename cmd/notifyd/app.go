package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/delivery"
	"github.com/dmitrymomot/notifykit/pkg/directory"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/eventbridge"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/preferences"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/recipients"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/reminders"
	"github.com/dmitrymomot/notifykit/pkg/render"
	"github.com/dmitrymomot/notifykit/pkg/sms"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

const broadcastBuffer = 64

// queueRepository is implemented by both queue storages.
type queueRepository interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
	queue.SchedulerRepository
}

// app owns every long-lived component of the process.
type app struct {
	cfg       Config
	log       *slog.Logger
	bus       *events.Bus
	worker    *queue.Worker
	scheduler *queue.Scheduler
	server    *httpserver.Server
	router    http.Handler
	checks    []httpserver.Check
	closers   []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// newApp connects the stores and wires the pipeline. On error every resource
// opened so far is released.
func newApp(ctx context.Context, cfg Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
		}
	}()

	db, err := mongo.NewWithDatabase(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	a.onClose("mongo", func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
	a.checks = append(a.checks, httpserver.Check{Name: "mongo", Probe: mongo.Healthcheck(db.Client())})

	notifStore := notifications.NewMongoStorage(db.Collection(notifications.DefaultCollection))
	prefStore := preferences.NewMongoStore(db.Collection(preferences.DefaultCollection))
	users := directory.NewMongoDirectory(db.Collection(directory.DefaultCollection))
	subs := reminders.NewMongoSubscriptions(db.Collection(reminders.DefaultSubscriptionsCollection))
	content := reminders.NewMongoContent(db.Collection(reminders.DefaultContentCollection))
	if err := mongo.EnsureIndexes(ctx, notifStore, users, subs, content); err != nil {
		return nil, err
	}

	engineOpts := []preferences.EngineOption{
		preferences.WithEngineLogger(log.With(logger.Component("preferences"))),
	}
	if cfg.App.QuotaBackend == QuotaRedis {
		rc, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose("redis", func(context.Context) error { return rc.Close() })
		a.checks = append(a.checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(rc)})
		engineOpts = append(engineOpts, preferences.WithQuotaCounter(preferences.NewRedisCounter(rc)))
	}
	engine := preferences.NewEngine(prefStore, engineOpts...)

	repo, err := a.queueStorage(ctx)
	if err != nil {
		return nil, err
	}
	enqueuer, err := queue.NewEnqueuer(repo,
		queue.WithDefaultQueue(cfg.Queue.Queue),
		queue.WithDefaultMaxAttempts(cfg.Queue.MaxAttempts),
	)
	if err != nil {
		return nil, err
	}

	broadcaster := notifications.NewBroadcastDeliverer(broadcastBuffer,
		notifications.WithBroadcastLogger(log.With(logger.Component("broadcast"))),
	)
	a.onClose("broadcast", func(context.Context) error { return broadcaster.Close() })
	manager := notifications.NewManager(notifStore, broadcaster,
		notifications.WithManagerLogger(log.With(logger.Component("notifications"))),
	)

	a.bus = events.NewBus(
		events.WithBusLogger(log.With(logger.Component("bus"))),
		events.WithDefaultSource(cfg.App.ServiceName),
	)

	orch, err := dispatch.New(dispatch.Deps{
		Resolver:    recipients.NewResolver(users, engine, recipients.WithLogger(log.With(logger.Component("recipients")))),
		Preferences: engine,
		Renderer:    render.New(render.WithBaseURL(cfg.App.BaseURL)),
		Users:       users,
		Records:     manager,
		Jobs:        enqueuer,
	}, dispatch.WithConfig(cfg.Dispatch), dispatch.WithLogger(log.With(logger.Component("dispatch"))))
	if err != nil {
		return nil, err
	}
	a.listen("dispatch", orch.Handle)

	if cfg.EventBridge.Enabled {
		pub, err := eventbridge.Dial(ctx, cfg.EventBridge,
			eventbridge.WithLogger(log.With(logger.Component("eventbridge"))),
		)
		if err != nil {
			return nil, err
		}
		a.onClose("eventbridge", func(context.Context) error { return pub.Close() })
		a.listen("eventbridge", pub.Listen)
	}

	deliverer, err := a.deliverer(ctx, manager, users)
	if err != nil {
		return nil, err
	}

	a.worker, err = queue.NewWorker(repo,
		queue.WithQueues(cfg.queues()...),
		queue.WithPullInterval(cfg.Queue.PollInterval),
		queue.WithLockTimeout(cfg.Queue.LockTimeout),
		queue.WithMaxConcurrentJobs(cfg.Queue.MaxConcurrentJobs),
		queue.WithDeadLetterHook(deliverer.DeadLetterHook()),
		queue.WithWorkerLogger(log.With(logger.Component("worker"))),
	)
	if err != nil {
		return nil, err
	}
	a.worker.RegisterHandlers(deliverer.Handlers()...)

	a.scheduler, err = queue.NewScheduler(repo,
		queue.WithCheckInterval(cfg.Queue.SchedulerInterval),
		queue.WithSchedulerLogger(log.With(logger.Component("scheduler"))),
	)
	if err != nil {
		return nil, err
	}

	runner, err := reminders.New(reminders.Deps{
		Subscriptions: subs,
		Content:       content,
		Audience:      engine,
		Emitter:       a.bus,
		Expirer:       manager,
	}, reminders.WithConfig(cfg.Reminders), reminders.WithLogger(log.With(logger.Component("reminders"))))
	if err != nil {
		return nil, err
	}
	if err := runner.Register(a.scheduler, a.worker); err != nil {
		return nil, err
	}

	a.server = httpserver.New(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))
	a.router = httpserver.Router(httpserver.RouterOptions{
		Env:          cfg.Environment,
		Logger:       log,
		CheckTimeout: cfg.HTTP.CheckTimeout,
		Checks:       a.checks,
		Draining:     a.server.Draining,
	})

	log.LogAttrs(ctx, slog.LevelInfo, "notifyd wired",
		logger.Channels(deliverer.Channels()),
		slog.Any("queues", cfg.queues()),
		slog.String("queue_storage", cfg.Queue.Storage),
		slog.String("quota_backend", cfg.App.QuotaBackend),
		slog.Bool("eventbridge", cfg.EventBridge.Enabled),
	)
	return a, nil
}

func (a *app) queueStorage(ctx context.Context) (queueRepository, error) {
	if a.cfg.Queue.Storage == queue.StorageMemory {
		a.log.LogAttrs(ctx, slog.LevelWarn, "using in-memory job queue, jobs are lost on restart")
		return queue.NewMemoryStorage(), nil
	}

	pool, err := pg.Connect(ctx, a.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	a.checks = append(a.checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})

	if err := pg.Migrate(ctx, pool, a.cfg.Postgres, queue.Migrations, a.log.With(logger.Component("migrate"))); err != nil {
		return nil, err
	}
	return queue.NewPgStorage(pool), nil
}

// deliverer builds a sender for every enabled channel. Disabled channels get
// no handler, so their jobs dead-letter and the channel is marked failed.
func (a *app) deliverer(ctx context.Context, records delivery.Records, users delivery.UserFinder) (*delivery.Deliverer, error) {
	cfg := a.cfg
	deps := delivery.Deps{Records: records, Users: users}

	if cfg.App.EmailEnabled {
		mailer, err := email.New(cfg.Email)
		if err != nil {
			return nil, err
		}
		deps.Email = mailer
	}

	if cfg.App.Webhooks {
		deps.Webhook = webhook.NewSender(
			webhook.WithUserAgent(cfg.Webhook.UserAgent),
			webhook.WithCircuitBreakers(cfg.Webhook.Circuit, cfg.Webhook.MaxHosts),
			webhook.WithLogger(a.log.With(logger.Component("webhook"))),
		)
	}

	if cfg.App.PushEnabled {
		client, err := push.NewClient(ctx, cfg.Push)
		if err != nil {
			return nil, err
		}
		deps.Push = push.NewSender(client, cfg.Push.BatchSize)
	}

	if cfg.App.SMSEnabled {
		sender, err := sms.NewSender(ctx, cfg.SMS)
		if err != nil {
			return nil, err
		}
		deps.SMS = sender
	}

	dcfg := cfg.Delivery
	if dcfg.WebhookSecret == "" {
		dcfg.WebhookSecret = cfg.Webhook.Secret
	}
	return delivery.New(deps,
		delivery.WithConfig(dcfg),
		delivery.WithLogger(a.log.With(logger.Component("delivery"))),
	)
}

// listen subscribes handler to every bus event through a bounded async
// listener, so Emit never waits on storage or the broker.
func (a *app) listen(name string, handler events.Listener) {
	async := events.NewAsyncListener(handler,
		events.WithWorkers(a.cfg.App.AsyncWorkers),
		events.WithBufferSize(a.cfg.App.AsyncBuffer),
		events.WithAsyncLogger(a.log.With(logger.Component(name))),
	)
	unsubscribe := a.bus.Subscribe(events.TopicNotification, async.Listen)
	a.onClose(name, func(ctx context.Context) error {
		unsubscribe()
		return async.Close(ctx)
	})
}

func (a *app) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// run blocks until ctx is done or a component fails, then releases
// everything in reverse order of creation.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.worker.Run(gctx))
	g.Go(a.scheduler.Run(gctx))
	g.Go(func() error { return a.server.Run(gctx, a.router) })

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.App.CloseTimeout)
	defer cancel()
	if cerr := a.close(closeCtx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c.fn(ctx); err != nil {
			a.log.LogAttrs(ctx, slog.LevelError, "failed to close component",
				logger.Component(c.name),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
