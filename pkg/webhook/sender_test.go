package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

type fixedBackoff time.Duration

func (f fixedBackoff) NextInterval(int) time.Duration { return time.Duration(f) }

func TestSender_Send(t *testing.T) {
	t.Parallel()

	t.Run("signed delivery", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		var verifyErr atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if err := webhook.Verify("secret", body, r.Header, time.Minute, now); err != nil {
				verifyErr.Store(err)
			}
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "n-1", r.Header.Get(webhook.HeaderDelivery))
			assert.Equal(t, "v", r.Header.Get("X-Custom"))
			assert.JSONEq(t, `{"id":"n-1"}`, string(body))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		s := webhook.NewSender(webhook.WithClock(func() time.Time { return now }))
		res, err := s.Send(context.Background(), srv.URL, map[string]string{"id": "n-1"},
			webhook.WithSignature("secret"),
			webhook.WithDeliveryID("n-1"),
			webhook.WithHeader("X-Custom", "v"),
		)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, res.StatusCode)
		assert.Equal(t, 1, res.Attempt)
		assert.Nil(t, verifyErr.Load())
	})

	t.Run("client error is permanent", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "gone", http.StatusGone)
		}))
		defer srv.Close()

		res, err := webhook.NewSender().Send(context.Background(), srv.URL, map[string]int{"a": 1},
			webhook.WithRetries(3, fixedBackoff(0)),
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
		assert.True(t, webhook.IsPermanent(err))
		assert.Contains(t, err.Error(), "gone")
		assert.Equal(t, http.StatusGone, res.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		var attempts []int
		res, err := webhook.NewSender().Send(context.Background(), srv.URL, []int{1},
			webhook.WithRetries(3, fixedBackoff(time.Millisecond)),
			webhook.WithOnAttempt(func(r webhook.Result) { attempts = append(attempts, r.StatusCode) }),
		)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Attempt)
		assert.Equal(t, []int{503, 503, 200}, attempts)
	})

	t.Run("temporary failure without retries", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := webhook.NewSender().Send(context.Background(), srv.URL, []int{1})
		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrWebhookDeliveryFailed)
		assert.False(t, webhook.IsPermanent(err))
	})
}

func TestSender_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		data     any
		want     error
	}{
		{"empty url", "", 1, webhook.ErrInvalidURL},
		{"bad scheme", "ftp://example.com/hook", 1, webhook.ErrInvalidURL},
		{"no host", "https:///hook", 1, webhook.ErrInvalidURL},
		{"nil payload", "https://example.com/hook", nil, webhook.ErrInvalidPayload},
		{"unmarshalable payload", "https://example.com/hook", make(chan int), webhook.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := webhook.NewSender().Send(context.Background(), tt.endpoint, tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, webhook.IsPermanent(err))
		})
	}
}

func TestSender_CircuitBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	now := time.Now()
	s := webhook.NewSender(
		webhook.WithClock(func() time.Time { return now }),
		webhook.WithCircuitBreakers(webhook.CircuitConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute}, 8),
		webhook.WithLogger(logger.Discard()),
	)
	ctx := context.Background()

	for range 2 {
		_, err := s.Send(ctx, srv.URL, 1)
		require.ErrorIs(t, err, webhook.ErrWebhookDeliveryFailed)
	}
	assert.Equal(t, webhook.CircuitOpen, s.CircuitState(u.Host))

	_, err = s.Send(ctx, srv.URL, 1)
	assert.ErrorIs(t, err, webhook.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, webhook.CircuitClosed, s.CircuitState("other.example.com"))
}
