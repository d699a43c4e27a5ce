package httpserver_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func readyStatus(client *http.Client, url string) (int, string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	var report httpserver.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, report.Status, nil
}

func TestServer_ReadinessDuringShutdown(t *testing.T) {
	t.Parallel()

	ln := listen(t)
	url := "http://" + ln.Addr().String() + "/ready"
	srv := httpserver.New(httpserver.Config{
		DrainDelay:      400 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}, httpserver.WithListener(ln), httpserver.WithLogger(logger.Discard()))

	router := httpserver.Router(httpserver.RouterOptions{
		Logger:   logger.Discard(),
		Draining: srv.Draining,
		Checks:   []httpserver.Check{{Name: "mongo", Probe: func(context.Context) error { return nil }}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, router) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		code, status, err := readyStatus(client, url)
		return err == nil && code == http.StatusOK && status == httpserver.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, srv.Draining())

	cancel()
	require.Eventually(t, func() bool {
		code, status, err := readyStatus(client, url)
		return err == nil && code == http.StatusServiceUnavailable && status == httpserver.StatusDraining
	}, 300*time.Millisecond, 10*time.Millisecond, "still serving while draining")
	assert.True(t, srv.Draining())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after shutdown")
	}

	_, _, err := readyStatus(client, url)
	assert.Error(t, err, "listener is closed")
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_RunErrors(t *testing.T) {
	t.Parallel()

	t.Run("address in use", func(t *testing.T) {
		t.Parallel()
		taken := listen(t)
		t.Cleanup(func() { _ = taken.Close() })

		srv := httpserver.New(httpserver.Config{Addr: taken.Addr().String()})
		err := srv.Run(context.Background(), nil)
		assert.ErrorIs(t, err, httpserver.ErrListen)
	})

	t.Run("second run", func(t *testing.T) {
		t.Parallel()
		ln := listen(t)
		srv := httpserver.New(httpserver.Config{}, httpserver.WithListener(ln))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Run(ctx, nil) }()

		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + ln.Addr().String())
			if err != nil {
				return false
			}
			_ = resp.Body.Close()
			return resp.StatusCode == http.StatusNotFound
		}, 2*time.Second, 10*time.Millisecond)
		assert.ErrorIs(t, srv.Run(context.Background(), nil), httpserver.ErrAlreadyRunning)

		cancel()
		require.NoError(t, <-done)
		assert.ErrorIs(t, srv.Run(context.Background(), nil), httpserver.ErrClosed)
	})

	t.Run("shutdown before run", func(t *testing.T) {
		t.Parallel()
		ln := listen(t)
		t.Cleanup(func() { _ = ln.Close() })
		srv := httpserver.New(httpserver.Config{}, httpserver.WithListener(ln))
		require.NoError(t, srv.Shutdown(context.Background()))
		assert.True(t, srv.Draining())
		assert.ErrorIs(t, srv.Run(context.Background(), nil), httpserver.ErrClosed)
	})
}
