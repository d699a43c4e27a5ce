package notifications

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

func TestIndexModels(t *testing.T) {
	t.Parallel()

	var idem *mongo.IndexModel
	models := indexModels()
	for i := range models {
		if keys, ok := models[i].Keys.(bson.D); ok && len(keys) == 2 && keys[1].Key == "metadata.idempotency_key" {
			idem = &models[i]
		}
	}
	require.NotNil(t, idem, "idempotency index is declared")
	assert.Equal(t, bson.D{{Key: "user_id", Value: 1}, {Key: "metadata.idempotency_key", Value: 1}}, idem.Keys)

	var opts options.IndexOptions
	for _, set := range idem.Options.List() {
		require.NoError(t, set(&opts))
	}
	require.NotNil(t, opts.Unique)
	assert.True(t, *opts.Unique)
	assert.Equal(t, bson.D{
		{Key: "metadata.idempotency_key", Value: bson.D{{Key: "$type", Value: "string"}}},
	}, opts.PartialFilterExpression)
}

func TestChannelStatusFilter(t *testing.T) {
	t.Parallel()

	got := channelStatusFilter("n1", events.ChannelEmail, []ChannelStatus{StatusPending, StatusFailed})
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "n1"},
		{Key: "channels.email.enabled", Value: true},
		{Key: "channels.email.status", Value: bson.D{{Key: "$in", Value: []ChannelStatus{StatusPending, StatusFailed}}}},
	}, got)
}

func TestChannelStatusUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reason string
		want   bson.D
	}{
		{
			name: "without reason",
			want: bson.D{
				{Key: "channels.push.status", Value: StatusSent},
				{Key: "channels.push.updated_at", Value: t0},
				{Key: "updated_at", Value: t0},
			},
		},
		{
			name:   "reason is recorded",
			reason: "token expired",
			want: bson.D{
				{Key: "channels.push.status", Value: StatusSent},
				{Key: "channels.push.updated_at", Value: t0},
				{Key: "updated_at", Value: t0},
				{Key: "channels.push.error", Value: "token expired"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := channelStatusUpdate(events.ChannelPush, StatusSent, tt.reason, t0)
			assert.Equal(t, bson.D{{Key: "$set", Value: tt.want}}, got)
		})
	}
}

func TestRefreshFilter(t *testing.T) {
	t.Parallel()

	n := Notification{ID: "n1", UpdatedAt: t0, OverallStatus: OverallPending}
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "n1"},
		{Key: "updated_at", Value: t0},
		{Key: "overall_status", Value: OverallPending},
	}, refreshFilter(n))
}

func TestUnreadFilter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bson.D{
		{Key: "user_id", Value: "u1"},
		{Key: "channels.inApp.enabled", Value: true},
		{Key: "channels.inApp.status", Value: StatusUnread},
	}, unreadFilter("u1"))
}

func TestMongoStorage_DuplicateIdempotencyKey(t *testing.T) {
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		t.Skip("MONGODB_URL not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(options.Client().ApplyURI(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	coll := client.Database("notifykit_test").Collection("notifications_" + uuid.NewString())
	t.Cleanup(func() { _ = coll.Drop(context.Background()) })

	s := NewMongoStorage(coll, WithMongoClock(func() time.Time { return t0 }))
	require.NoError(t, s.EnsureIndexes(ctx))

	first := newRecord(uuid.NewString(), "u1", t0)
	first.Metadata.IdempotencyKey = "sub1:3:2026-03-10"
	require.NoError(t, s.Create(ctx, first))

	second := newRecord(uuid.NewString(), "u1", t0)
	second.Metadata.IdempotencyKey = "sub1:3:2026-03-10"
	assert.ErrorIs(t, s.Create(ctx, second), ErrDuplicateNotification)

	// other users and records without a key are not constrained
	other := newRecord(uuid.NewString(), "u2", t0)
	other.Metadata.IdempotencyKey = "sub1:3:2026-03-10"
	require.NoError(t, s.Create(ctx, other))
	require.NoError(t, s.Create(ctx, newRecord(uuid.NewString(), "u1", t0)))
	require.NoError(t, s.Create(ctx, newRecord(uuid.NewString(), "u1", t0)))
}
