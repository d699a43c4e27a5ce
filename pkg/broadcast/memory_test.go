package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroadcaster_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("subscribe after close returns closed subscriber", func(t *testing.T) {
		t.Parallel()
		b := NewMemoryBroadcaster[string](10)
		require.NoError(t, b.Close())

		sub := b.Subscribe(context.Background())
		_, ok := <-sub.Receive(context.Background())
		assert.False(t, ok)
	})

	t.Run("context cancellation unsubscribes", func(t *testing.T) {
		t.Parallel()
		b := NewMemoryBroadcaster[string](10)
		defer b.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sub := b.Subscribe(ctx)
		cancel()

		select {
		case _, ok := <-sub.Receive(context.Background()):
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("subscriber not closed after cancel")
		}
		assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("closing the subscriber removes it", func(t *testing.T) {
		t.Parallel()
		b := NewMemoryBroadcaster[string](10)
		defer b.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sub := b.Subscribe(ctx)
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())

		assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
	})
}

func TestMemoryBroadcaster_Broadcast(t *testing.T) {
	t.Parallel()

	t.Run("fan out", func(t *testing.T) {
		t.Parallel()
		b := NewMemoryBroadcaster[int](10)
		defer b.Close()
		ctx := context.Background()

		subs := []Subscriber[int]{b.Subscribe(ctx), b.Subscribe(ctx), b.Subscribe(ctx)}
		require.NoError(t, b.Broadcast(ctx, Message[int]{Data: 42}))

		for _, sub := range subs {
			msg := <-sub.Receive(ctx)
			assert.Equal(t, 42, msg.Data)
		}
	})

	t.Run("slow subscriber is dropped", func(t *testing.T) {
		t.Parallel()
		b := NewMemoryBroadcaster[int](1)
		defer b.Close()
		ctx := context.Background()

		slow := b.Subscribe(ctx)
		require.NoError(t, b.Broadcast(ctx, Message[int]{Data: 1}))
		require.NoError(t, b.Broadcast(ctx, Message[int]{Data: 2}))

		msg, ok := <-slow.Receive(ctx)
		require.True(t, ok)
		assert.Equal(t, 1, msg.Data)
		_, ok = <-slow.Receive(ctx)
		assert.False(t, ok)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("after close is a no-op", func(t *testing.T) {
		t.Parallel()
		b := NewMemoryBroadcaster[int](1)
		require.NoError(t, b.Close())
		assert.NoError(t, b.Broadcast(context.Background(), Message[int]{Data: 1}))
	})
}

func TestMemoryBroadcaster_CloseWithLiveContexts(t *testing.T) {
	t.Parallel()
	b := NewMemoryBroadcaster[int](1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for range 5 {
		b.Subscribe(ctx)
	}

	done := make(chan struct{})
	go func() {
		_ = b.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on live subscription contexts")
	}
}

func TestMemoryBroadcaster_Concurrent(t *testing.T) {
	t.Parallel()
	b := NewMemoryBroadcaster[int](100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(ctx)
			_ = sub.Close()
		}()
		go func() {
			defer wg.Done()
			_ = b.Broadcast(ctx, Message[int]{Data: i})
		}()
	}
	wg.Wait()
	require.NoError(t, b.Close())
}
