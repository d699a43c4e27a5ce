package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func inApp(id, userID string) Notification {
	return Notification{
		ID:       id,
		UserID:   userID,
		Title:    id,
		Channels: NewChannels([]events.Channel{events.ChannelInApp}, []events.Channel{events.ChannelInApp}, t0),
	}
}

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no notification received")
	}
	return Notification{}
}

func TestBroadcastDeliverer(t *testing.T) {
	t.Parallel()

	t.Run("delivers to the user's subscribers", func(t *testing.T) {
		t.Parallel()
		d := NewBroadcastDeliverer(10, WithBroadcastLogger(logger.Discard()))
		defer d.Close()
		ctx := context.Background()

		sub := d.Subscribe(ctx, "u1")
		other := d.Subscribe(ctx, "u2")

		require.NoError(t, d.Deliver(ctx, inApp("n1", "u1")))

		msg := <-sub.Receive(ctx)
		assert.Equal(t, "n1", msg.Data.ID)

		select {
		case m := <-other.Receive(ctx):
			t.Fatalf("u2 received %v", m.Data.ID)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("skips records without in-app", func(t *testing.T) {
		t.Parallel()
		d := NewBroadcastDeliverer(10)
		defer d.Close()
		ctx := context.Background()

		sub := d.Subscribe(ctx, "u1")
		n := inApp("n1", "u1")
		n.Channels = NewChannels([]events.Channel{events.ChannelEmail}, []events.Channel{events.ChannelEmail}, t0)
		require.NoError(t, d.Deliver(ctx, n))

		select {
		case m := <-sub.Receive(ctx):
			t.Fatalf("unexpected %v", m.Data.ID)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("batch", func(t *testing.T) {
		t.Parallel()
		d := NewBroadcastDeliverer(10)
		defer d.Close()
		ctx := context.Background()

		sub := d.Subscribe(ctx, "u1")
		out := make(chan Notification, 2)
		go func() {
			for m := range sub.Receive(ctx) {
				out <- m.Data
			}
		}()

		require.NoError(t, d.DeliverBatch(ctx, []Notification{inApp("a", "u1"), inApp("b", "u1")}))
		assert.Equal(t, "a", receive(t, out).ID)
		assert.Equal(t, "b", receive(t, out).ID)
	})

	t.Run("evicts least recently used broadcaster", func(t *testing.T) {
		t.Parallel()
		d := NewBroadcastDeliverer(10, WithMaxBroadcasters(2), WithBroadcastLogger(logger.Discard()))
		defer d.Close()
		ctx := context.Background()

		sub1 := d.Subscribe(ctx, "u1")
		_ = d.Subscribe(ctx, "u2")
		_ = d.Subscribe(ctx, "u3")

		// u1's broadcaster was closed on eviction, so its channel is closed
		select {
		case _, ok := <-sub1.Receive(ctx):
			assert.False(t, ok)
		case <-time.After(200 * time.Millisecond):
			t.Fatal("evicted subscriber not closed")
		}
	})
}

func TestMultiDeliverer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	failing := new(MockDeliverer)
	ok := new(MockDeliverer)
	n := inApp("n1", "u1")

	failing.On("Deliver", ctx, n).Return(assert.AnError).Once()
	ok.On("Deliver", ctx, n).Return(nil).Once()

	m := NewMultiDeliverer([]Deliverer{failing, ok}, WithMultiDelivererLogger(logger.Discard()))
	assert.NoError(t, m.Deliver(ctx, n))
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}
