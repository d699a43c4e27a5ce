package queue

import "time"

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the job queue settings.
type Config struct {
	Storage           string        `env:"QUEUE_STORAGE" envDefault:"postgres"` // postgres or memory
	Queue             string        `env:"QUEUE_NAME" envDefault:"notifications"`
	PollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout       time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	MaxConcurrentJobs int           `env:"QUEUE_MAX_CONCURRENT_JOBS" envDefault:"10"`
	MaxAttempts       int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"5"`
	SchedulerInterval time.Duration `env:"QUEUE_SCHEDULER_INTERVAL" envDefault:"30s"`
}
