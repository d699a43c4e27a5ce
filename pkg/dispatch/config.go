package dispatch

// Config holds dispatch settings.
type Config struct {
	Queue       string `env:"DISPATCH_QUEUE" envDefault:"notifications"`
	MaxAttempts int    `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"5"`
	// Concurrency bounds how many recipients of one event are processed at once.
	Concurrency int `env:"DISPATCH_CONCURRENCY" envDefault:"8"`
}

// DefaultConfig returns the values used when no Config is given.
func DefaultConfig() Config {
	return Config{Queue: "notifications", MaxAttempts: 5, Concurrency: 8}
}
