package reminders

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	DefaultSubscriptionsCollection = "subscriptions"
	DefaultContentCollection       = "insights"
)

// MongoSubscriptions reads subscriptions from a MongoDB collection.
type MongoSubscriptions struct {
	coll *mongo.Collection
}

// NewMongoSubscriptions returns a source over coll.
func NewMongoSubscriptions(coll *mongo.Collection) *MongoSubscriptions {
	return &MongoSubscriptions{coll: coll}
}

func (s *MongoSubscriptions) EndingBetween(ctx context.Context, from, to time.Time) ([]Subscription, error) {
	filter := bson.D{{Key: "end_date", Value: bson.D{
		{Key: "$gte", Value: from},
		{Key: "$lt", Value: to},
	}}}
	opts := options.Find().SetSort(bson.D{{Key: "end_date", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find subscriptions: %w", err)
	}
	var subs []Subscription
	if err := cur.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return subs, nil
}

// EnsureIndexes creates the end date index the window queries use.
func (s *MongoSubscriptions) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "end_date", Value: 1}},
	})
	return err
}

// MongoContent ranks content stored in a MongoDB collection.
type MongoContent struct {
	coll *mongo.Collection
}

// NewMongoContent returns a source over coll.
func NewMongoContent(coll *mongo.Collection) *MongoContent {
	return &MongoContent{coll: coll}
}

func (c *MongoContent) Top(ctx context.Context, since time.Time, limit int) ([]ContentItem, error) {
	filter := bson.D{{Key: "published_at", Value: bson.D{{Key: "$gte", Value: since}}}}
	opts := options.Find().SetSort(bson.D{{Key: "engagement", Value: -1}, {Key: "published_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find content: %w", err)
	}
	var items []ContentItem
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return items, nil
}

// EnsureIndexes creates the index used by Top.
func (c *MongoContent) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "published_at", Value: -1}, {Key: "engagement", Value: -1}},
	})
	return err
}
