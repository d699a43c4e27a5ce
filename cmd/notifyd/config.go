package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/delivery"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/environment"
	"github.com/dmitrymomot/notifykit/pkg/eventbridge"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/reminders"
	"github.com/dmitrymomot/notifykit/pkg/sms"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

// Quota counter backends.
const (
	QuotaMongo = "mongo"
	QuotaRedis = "redis"
)

var errInvalidAppConfig = errors.New("invalid app config")

// AppConfig holds process-level settings. Component settings live in their
// own packages and are loaded by LoadConfig.
type AppConfig struct {
	Env          string        `env:"APP_ENV" envDefault:"development"`
	ServiceName  string        `env:"APP_NAME" envDefault:"notifyd"`
	LogLevel     string        `env:"LOG_LEVEL"`
	BaseURL      string        `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	QuotaBackend string        `env:"QUOTA_BACKEND" envDefault:"mongo"`
	EmailEnabled bool          `env:"EMAIL_ENABLED" envDefault:"true"`
	PushEnabled  bool          `env:"PUSH_ENABLED" envDefault:"false"`
	SMSEnabled   bool          `env:"SMS_ENABLED" envDefault:"false"`
	Webhooks     bool          `env:"WEBHOOK_ENABLED" envDefault:"true"`
	AsyncWorkers int           `env:"DISPATCH_ASYNC_WORKERS" envDefault:"4"`
	AsyncBuffer  int           `env:"DISPATCH_ASYNC_BUFFER" envDefault:"1024"`
	CloseTimeout time.Duration `env:"APP_CLOSE_TIMEOUT" envDefault:"15s"`
}

// Config is the full process configuration.
type Config struct {
	App         AppConfig
	Environment environment.Environment
	Mongo       mongo.Config
	Postgres    pg.Config
	Redis       redis.Config
	Queue       queue.Config
	Email       email.Config
	Webhook     webhook.Config
	Push        push.Config
	SMS         sms.Config
	EventBridge eventbridge.Config
	Dispatch    dispatch.Config
	Reminders   reminders.Config
	Delivery    delivery.Config
	HTTP        httpserver.Config
}

// LoadConfig reads every section from the environment. Sections that belong
// to disabled components are skipped so their required variables stay
// optional. vars replaces the process environment when non-nil.
func LoadConfig(vars map[string]string) (Config, error) {
	var opts []config.Option
	if vars != nil {
		opts = append(opts, config.WithEnvironment(vars))
	}

	var cfg Config
	if err := config.Load(&cfg.App, opts...); err != nil {
		return Config{}, err
	}

	env, err := environment.Parse(cfg.App.Env)
	if err != nil {
		return Config{}, errors.Join(errInvalidAppConfig, err)
	}
	cfg.Environment = env

	switch cfg.App.QuotaBackend {
	case QuotaMongo, QuotaRedis:
	default:
		return Config{}, fmt.Errorf("%w: unknown quota backend %q", errInvalidAppConfig, cfg.App.QuotaBackend)
	}

	sections := []struct {
		enabled bool
		load    func() error
	}{
		{true, func() error { return config.Load(&cfg.Mongo, opts...) }},
		{true, func() error { return config.Load(&cfg.Queue, opts...) }},
		{true, func() error { return config.Load(&cfg.Dispatch, opts...) }},
		{true, func() error { return config.Load(&cfg.Reminders, opts...) }},
		{true, func() error { return config.Load(&cfg.Delivery, opts...) }},
		{true, func() error { return config.Load(&cfg.HTTP, opts...) }},
		{true, func() error { return config.Load(&cfg.EventBridge, opts...) }},
		{cfg.App.QuotaBackend == QuotaRedis, func() error { return config.Load(&cfg.Redis, opts...) }},
		{cfg.App.EmailEnabled, func() error { return config.Load(&cfg.Email, opts...) }},
		{cfg.App.Webhooks, func() error { return config.Load(&cfg.Webhook, opts...) }},
		{cfg.App.PushEnabled, func() error { return config.Load(&cfg.Push, opts...) }},
		{cfg.App.SMSEnabled, func() error { return config.Load(&cfg.SMS, opts...) }},
	}
	for _, s := range sections {
		if !s.enabled {
			continue
		}
		if err := s.load(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Queue.Storage != queue.StoragePostgres && cfg.Queue.Storage != queue.StorageMemory {
		return Config{}, fmt.Errorf("%w: unknown queue storage %q", errInvalidAppConfig, cfg.Queue.Storage)
	}
	if cfg.Queue.Storage == queue.StoragePostgres {
		if err := config.Load(&cfg.Postgres, opts...); err != nil {
			return Config{}, err
		}
	}
	if cfg.Queue.Storage == queue.StorageMemory && env.IsProduction() {
		return Config{}, fmt.Errorf("%w: memory queue storage in production", errInvalidAppConfig)
	}

	return cfg, nil
}

// queues lists every queue the worker polls, without duplicates.
func (c Config) queues() []string {
	seen := make(map[string]struct{}, 3)
	var out []string
	for _, q := range []string{c.Queue.Queue, c.Dispatch.Queue, c.Reminders.Queue} {
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
