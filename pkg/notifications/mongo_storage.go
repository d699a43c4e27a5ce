package notifications

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// DefaultCollection is the notification collection name.
const DefaultCollection = "notifications"

// refreshAttempts bounds the optimistic retry loop of RefreshOverallStatus.
const refreshAttempts = 5

// MongoStorage stores notifications in a MongoDB collection. Channel and
// overall status changes are conditional single-document updates.
type MongoStorage struct {
	coll *mongo.Collection
	now  func() time.Time
}

// MongoStorageOption configures a MongoStorage.
type MongoStorageOption func(*MongoStorage)

// WithMongoClock overrides the clock used for UpdatedAt and ReadAt.
func WithMongoClock(now func() time.Time) MongoStorageOption {
	return func(s *MongoStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMongoStorage returns a storage over coll.
func NewMongoStorage(coll *mongo.Collection, opts ...MongoStorageOption) *MongoStorage {
	s := &MongoStorage{coll: coll, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// indexModels lists the collection indexes. The idempotency index is unique
// per user so concurrent creates with the same key fail with a duplicate key
// error; records without a key are left out of it.
func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "metadata.idempotency_key", Value: 1}},
			Options: options.Index().
				SetName("user_idempotency_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "metadata.idempotency_key", Value: bson.D{{Key: "$type", Value: "string"}}},
				}),
		},
		{Keys: bson.D{{Key: "overall_status", Value: 1}, {Key: "metadata.expires_at", Value: 1}}},
	}
}

// EnsureIndexes creates the indexes the storage queries rely on.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	if _, err := s.coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *MongoStorage) Create(ctx context.Context, notif Notification) error {
	if err := validate(notif); err != nil {
		return err
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = s.now()
	}
	if notif.UpdatedAt.IsZero() {
		notif.UpdatedAt = notif.CreatedAt
	}
	if _, err := s.coll.InsertOne(ctx, notif); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateNotification
		}
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *MongoStorage) Get(ctx context.Context, userID, notifID string) (*Notification, error) {
	var n Notification
	err := s.coll.FindOne(ctx, bson.D{
		{Key: "_id", Value: notifID},
		{Key: "user_id", Value: userID},
	}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &n, nil
}

func (s *MongoStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	filter := bson.D{{Key: "user_id", Value: userID}}
	if opts.OnlyUnread {
		filter = append(filter,
			bson.E{Key: inAppPath + ".enabled", Value: true},
			bson.E{Key: inAppPath + ".status", Value: StatusUnread},
		)
	}
	if len(opts.Types) > 0 {
		filter = append(filter, bson.E{Key: "type", Value: bson.D{{Key: "$in", Value: opts.Types}}})
	}
	if len(opts.Statuses) > 0 {
		filter = append(filter, bson.E{Key: "overall_status", Value: bson.D{{Key: "$in", Value: opts.Statuses}}})
	}
	if opts.Since != nil {
		filter = append(filter, bson.E{Key: "created_at", Value: bson.D{{Key: "$gte", Value: *opts.Since}}})
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(opts.Offset))
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	out := []Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return out, nil
}

func (s *MongoStorage) UpdateChannelStatus(ctx context.Context, notifID string, ch events.Channel, from []ChannelStatus, to ChannelStatus, reason string) error {
	res, err := s.coll.UpdateOne(ctx,
		channelStatusFilter(notifID, ch, from),
		channelStatusUpdate(ch, to, reason, s.now()),
	)
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return s.explainMiss(ctx, notifID, ch)
}

// channelStatusFilter matches the record only while ch is enabled and in
// one of the from states.
func channelStatusFilter(notifID string, ch events.Channel, from []ChannelStatus) bson.D {
	path := "channels." + string(ch)
	return bson.D{
		{Key: "_id", Value: notifID},
		{Key: path + ".enabled", Value: true},
		{Key: path + ".status", Value: bson.D{{Key: "$in", Value: from}}},
	}
}

func channelStatusUpdate(ch events.Channel, to ChannelStatus, reason string, now time.Time) bson.D {
	path := "channels." + string(ch)
	set := bson.D{
		{Key: path + ".status", Value: to},
		{Key: path + ".updated_at", Value: now},
		{Key: "updated_at", Value: now},
	}
	if reason != "" {
		set = append(set, bson.E{Key: path + ".error", Value: reason})
	}
	return bson.D{{Key: "$set", Value: set}}
}

// explainMiss tells apart the reasons a conditional channel update matched nothing.
func (s *MongoStorage) explainMiss(ctx context.Context, notifID string, ch events.Channel) error {
	var n Notification
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: notifID}}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if st, ok := n.Channels[ch]; !ok || !st.Enabled {
		return ErrChannelNotEnabled
	}
	return ErrStatusConflict
}

// RefreshOverallStatus reads the record, derives the status and writes it
// back only if the record was not modified in between.
func (s *MongoStorage) RefreshOverallStatus(ctx context.Context, notifID string) (OverallStatus, error) {
	for range refreshAttempts {
		var n Notification
		err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: notifID}}).Decode(&n)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotificationNotFound
		}
		if err != nil {
			return "", errors.Join(ErrStorageFailed, err)
		}
		if n.OverallStatus == OverallExpired {
			return OverallExpired, nil
		}
		status := DeriveOverallStatus(n.Channels)
		if status == n.OverallStatus {
			return status, nil
		}

		res, err := s.coll.UpdateOne(ctx, refreshFilter(n), bson.D{{Key: "$set", Value: bson.D{
			{Key: "overall_status", Value: status},
			{Key: "updated_at", Value: s.now()},
		}}})
		if err != nil {
			return "", errors.Join(ErrStorageFailed, err)
		}
		if res.MatchedCount == 1 {
			return status, nil
		}
	}
	return "", ErrStatusConflict
}

// refreshFilter matches n only if nobody modified it since it was read.
func refreshFilter(n Notification) bson.D {
	return bson.D{
		{Key: "_id", Value: n.ID},
		{Key: "updated_at", Value: n.UpdatedAt},
		{Key: "overall_status", Value: n.OverallStatus},
	}
}

func (s *MongoStorage) MarkRead(ctx context.Context, userID string, notifIDs ...string) error {
	if len(notifIDs) == 0 {
		return nil
	}
	now := s.now()
	filter := append(unreadFilter(userID), bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: notifIDs}}})
	_, err := s.coll.UpdateMany(ctx, filter,
		bson.D{{Key: "$set", Value: bson.D{
			{Key: inAppPath + ".status", Value: StatusRead},
			{Key: inAppPath + ".updated_at", Value: now},
			{Key: "read_at", Value: now},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *MongoStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, unreadFilter(userID))
	if err != nil {
		return 0, errors.Join(ErrStorageFailed, err)
	}
	return int(n), nil
}

// unreadFilter matches the user's records with an unread in-app channel.
func unreadFilter(userID string) bson.D {
	return bson.D{
		{Key: "user_id", Value: userID},
		{Key: inAppPath + ".enabled", Value: true},
		{Key: inAppPath + ".status", Value: StatusUnread},
	}
}

func (s *MongoStorage) ExistsByIdempotencyKey(ctx context.Context, userID, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	n, err := s.coll.CountDocuments(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "metadata.idempotency_key", Value: key},
		},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, errors.Join(ErrStorageFailed, err)
	}
	return n > 0, nil
}

func (s *MongoStorage) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.D{
			{Key: "overall_status", Value: OverallPending},
			{Key: "metadata.expires_at", Value: bson.D{{Key: "$lt", Value: now}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "overall_status", Value: OverallExpired},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil {
		return 0, errors.Join(ErrStorageFailed, err)
	}
	return res.ModifiedCount, nil
}

const inAppPath = "channels." + string(events.ChannelInApp)
