package delivery

import "time"

// Config holds delivery settings.
type Config struct {
	// EmailFooter is printed under every email body.
	EmailFooter    string        `env:"DELIVERY_EMAIL_FOOTER"`
	WebhookSecret  string        `env:"WEBHOOK_SIGNING_SECRET"`
	WebhookTimeout time.Duration `env:"DELIVERY_WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig returns the values used when no Config is given.
func DefaultConfig() Config {
	return Config{WebhookTimeout: 10 * time.Second}
}
