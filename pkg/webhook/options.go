package webhook

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) SenderOption {
	return func(s *Sender) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithClock overrides the time source used for signatures and breakers.
func WithClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCircuitBreakers keeps one breaker per endpoint host, for at most
// maxHosts hosts. The least recently used breaker is dropped beyond that.
func WithCircuitBreakers(cfg CircuitConfig, maxHosts int) SenderOption {
	return func(s *Sender) {
		if maxHosts <= 0 {
			maxHosts = 1024
		}
		s.circuitCfg = cfg
		s.circuits = cache.NewLRUCache[string, *CircuitBreaker](maxHosts)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// AttemptHook observes every delivery attempt.
type AttemptHook func(r Result)

type sendOptions struct {
	timeout    time.Duration
	headers    map[string]string
	secret     string
	deliveryID string
	retries    int
	backoff    BackoffStrategy
	onAttempt  AttemptHook
}

func defaultSendOptions() *sendOptions {
	return &sendOptions{
		timeout: 10 * time.Second,
		headers: make(map[string]string),
		backoff: ExponentialBackoff{JitterFactor: 0.1},
	}
}

// SendOption configures a single Send.
type SendOption func(*sendOptions)

// WithTimeout sets the per-attempt timeout. Default 10s.
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) SendOption {
	return func(o *sendOptions) {
		if key != "" && value != "" {
			o.headers[key] = value
		}
	}
}

// WithSignature signs the request body with secret.
func WithSignature(secret string) SendOption {
	return func(o *sendOptions) { o.secret = secret }
}

// WithDeliveryID sets the delivery id header.
func WithDeliveryID(id string) SendOption {
	return func(o *sendOptions) { o.deliveryID = id }
}

// WithRetries retries temporary failures n times in process. The default is
// no retry; callers running on a job queue usually leave retries to it.
func WithRetries(n int, backoff BackoffStrategy) SendOption {
	return func(o *sendOptions) {
		if n >= 0 {
			o.retries = n
		}
		if backoff != nil {
			o.backoff = backoff
		}
	}
}

// WithOnAttempt sets a hook called after each attempt.
func WithOnAttempt(hook AttemptHook) SendOption {
	return func(o *sendOptions) { o.onAttempt = hook }
}
