package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Config configures a Sender.
type Config struct {
	Secret    string        `env:"WEBHOOK_SIGNING_SECRET"`
	Timeout   time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	UserAgent string        `env:"WEBHOOK_USER_AGENT" envDefault:"notifykit-webhook/1.0"`
	MaxHosts  int           `env:"WEBHOOK_MAX_HOSTS" envDefault:"1024"`
	Circuit   CircuitConfig
}

// Result describes one delivery attempt, or the last one after Send returns.
type Result struct {
	StatusCode int
	Attempt    int
	Duration   time.Duration
	Err        error
}

// Sender posts JSON payloads to webhook endpoints. Safe for concurrent use.
type Sender struct {
	client     *http.Client
	userAgent  string
	now        func() time.Time
	circuits   *cache.LRUCache[string, *CircuitBreaker]
	circuitCfg CircuitConfig
	logger     *slog.Logger
}

// NewSender creates a sender with a pooled HTTP client.
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "notifykit-webhook/1.0",
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send marshals data to JSON and POSTs it to endpoint. 4xx responses other
// than 408, 425 and 429 fail with ErrPermanentFailure.
func (s *Sender) Send(ctx context.Context, endpoint string, data any, opts ...SendOption) (Result, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	host, err := validate(endpoint, payload)
	if err != nil {
		return Result{}, err
	}

	o := defaultSendOptions()
	for _, opt := range opts {
		opt(o)
	}

	breaker := s.breaker(host)
	if breaker != nil && !breaker.Allow() {
		return Result{}, ErrCircuitOpen
	}

	var last Result
	for attempt := 1; attempt <= o.retries+1; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(o.backoff.NextInterval(attempt - 1)):
			}
		}

		last = s.attempt(ctx, endpoint, payload, o)
		last.Attempt = attempt
		if o.onAttempt != nil {
			o.onAttempt(last)
		}
		if breaker != nil {
			if last.Err == nil {
				breaker.RecordSuccess()
			} else {
				breaker.RecordFailure()
			}
		}

		if last.Err == nil {
			return last, nil
		}
		if permanent(last.StatusCode) {
			return last, fmt.Errorf("%w: %w", ErrPermanentFailure, last.Err)
		}
		s.logger.LogAttrs(ctx, slog.LevelDebug, "webhook attempt failed",
			slog.String("host", host),
			logger.Attempt(attempt),
			logger.Error(last.Err),
		)
	}
	return last, fmt.Errorf("%w after %d attempts: %w", ErrWebhookDeliveryFailed, last.Attempt, last.Err)
}

// CircuitState returns the breaker state of host. Hosts without a breaker
// report closed.
func (s *Sender) CircuitState(host string) CircuitState {
	if s.circuits == nil {
		return CircuitClosed
	}
	if cb, ok := s.circuits.Get(host); ok {
		return cb.State()
	}
	return CircuitClosed
}

func (s *Sender) breaker(host string) *CircuitBreaker {
	if s.circuits == nil {
		return nil
	}
	return s.circuits.GetOrPut(host, func() *CircuitBreaker {
		return NewCircuitBreaker(s.circuitCfg, s.now)
	})
}

func (s *Sender) attempt(ctx context.Context, endpoint string, payload []byte, o *sendOptions) Result {
	start := time.Now()
	res := Result{}

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		res.Err = fmt.Errorf("failed to create request: %w", err)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if o.secret != "" {
		sig, err := Sign(o.secret, payload, s.now(), o.deliveryID)
		if err != nil {
			res.Err = err
			return res
		}
		sig.Apply(req.Header)
	} else if o.deliveryID != "" {
		req.Header.Set(HeaderDelivery, o.deliveryID)
	}

	resp, err := s.client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			res.Err = fmt.Errorf("%w: %w", ErrTimeout, err)
		} else {
			res.Err = fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
		}
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return res
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	if len(body) > 0 {
		// single line, bounded, safe to log
		text := strings.ReplaceAll(string(body), "\n", " ")
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		msg += ": " + text
	}
	res.Err = errors.New(msg)
	return res
}

func validate(endpoint string, payload []byte) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	if len(payload) == 0 || string(payload) == "null" {
		return "", fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	return u.Host, nil
}

func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
