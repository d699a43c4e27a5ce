package preferences

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// DefaultCollection is the preference collection name.
const DefaultCollection = "notification_preferences"

// MongoStore keeps one document per user, keyed by user id.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// MongoStoreOption configures a MongoStore.
type MongoStoreOption func(*MongoStore)

// WithMongoClock overrides the clock used to stamp documents.
func WithMongoClock(now func() time.Time) MongoStoreOption {
	return func(s *MongoStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMongoStore returns a store over coll.
func NewMongoStore(coll *mongo.Collection, opts ...MongoStoreOption) *MongoStore {
	s := &MongoStore{coll: coll, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MongoStore) GetOrCreate(ctx context.Context, userID string) (Preference, error) {
	if userID == "" {
		return Preference{}, ErrEmptyUserID
	}

	insert, err := toDocument(Defaults(userID, s.now()))
	if err != nil {
		return Preference{}, errors.Join(ErrStoreFailed, err)
	}
	delete(insert, "_id")

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var p Preference
	// Two concurrent upserts of the same _id can race; the loser retries as a plain read.
	for attempt := 0; attempt < 2; attempt++ {
		err = s.coll.FindOneAndUpdate(ctx,
			bson.D{{Key: "_id", Value: userID}},
			bson.D{{Key: "$setOnInsert", Value: insert}},
			opts,
		).Decode(&p)
		if err == nil || !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return Preference{}, errors.Join(ErrStoreFailed, err)
	}
	return p, nil
}

func (s *MongoStore) Save(ctx context.Context, p Preference) error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	p.UpdatedAt = s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: p.UserID}},
		p,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

// Reserve issues a conditional $inc for the current day and, when the day
// has rolled over, a conditional reset to one. Neither matching means the
// quota is used up.
func (s *MongoStore) Reserve(ctx context.Context, userID string, ch events.Channel, now time.Time) (bool, error) {
	if userID == "" {
		return false, ErrEmptyUserID
	}
	key, ok := channelKey(ch)
	if !ok {
		return false, ErrUnknownChannel
	}
	path := "daily_limits." + key

	var head struct {
		QuietHours  QuietHours  `bson:"quiet_hours"`
		DailyLimits DailyLimits `bson:"daily_limits"`
	}
	err := s.coll.FindOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		options.FindOne().SetProjection(bson.D{
			{Key: "quiet_hours.timezone", Value: 1},
			{Key: path + ".max", Value: 1},
		}),
	).Decode(&head)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, errors.Join(ErrStoreFailed, err)
	}
	if limit, _ := head.DailyLimits.For(ch); limit.Unlimited() {
		return true, nil
	}

	res, err := s.coll.UpdateOne(ctx, reserveFilter(userID, path, now), incSent(path, 1))
	if err != nil {
		return false, errors.Join(ErrStoreFailed, err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	res, err = s.coll.UpdateOne(ctx,
		rolloverFilter(userID, path, now),
		rolloverUpdate(path, NextReset(now, head.QuietHours.Timezone)),
	)
	if err != nil {
		return false, errors.Join(ErrStoreFailed, err)
	}
	return res.MatchedCount > 0, nil
}

// Release decrements today's counter. Documents whose day already rolled
// over, or whose counter is zero, do not match and are left alone.
func (s *MongoStore) Release(ctx context.Context, userID string, ch events.Channel, now time.Time) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	key, ok := channelKey(ch)
	if !ok {
		return ErrUnknownChannel
	}
	path := "daily_limits." + key
	if _, err := s.coll.UpdateOne(ctx, releaseFilter(userID, path, now), incSent(path, -1)); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

func (s *MongoStore) ListOptedIn(ctx context.Context, cat events.Category, nt events.NotificationType) ([]Preference, error) {
	path, ok := flagsPath(cat, nt)
	if !ok {
		return nil, ErrUnknownCategory
	}

	cur, err := s.coll.Find(ctx,
		optedInFilter(path),
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Join(ErrStoreFailed, err)
	}
	var out []Preference
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Join(ErrStoreFailed, err)
	}
	return out, nil
}

// reserveFilter matches a document with a slot left in the current day.
func reserveFilter(userID, path string, now time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: userID},
		{Key: path + ".reset_at", Value: bson.D{{Key: "$gt", Value: now}}},
		{Key: "$expr", Value: bson.D{{Key: "$lt", Value: bson.A{"$" + path + ".sent_today", "$" + path + ".max"}}}},
	}
}

// rolloverFilter matches a limited document whose day has ended.
func rolloverFilter(userID, path string, now time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: userID},
		{Key: path + ".max", Value: bson.D{{Key: "$gt", Value: 0}}},
		{Key: path + ".reset_at", Value: bson.D{{Key: "$lte", Value: now}}},
	}
}

func rolloverUpdate(path string, resetAt time.Time) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: path + ".sent_today", Value: 1},
		{Key: path + ".reset_at", Value: resetAt},
	}}}
}

// releaseFilter matches a limited document with a used slot in the current day.
func releaseFilter(userID, path string, now time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: userID},
		{Key: path + ".max", Value: bson.D{{Key: "$gt", Value: 0}}},
		{Key: path + ".reset_at", Value: bson.D{{Key: "$gt", Value: now}}},
		{Key: path + ".sent_today", Value: bson.D{{Key: "$gt", Value: 0}}},
	}
}

func incSent(path string, by int) bson.D {
	return bson.D{{Key: "$inc", Value: bson.D{{Key: path + ".sent_today", Value: by}}}}
}

// optedInFilter matches documents with any channel flag on under path.
func optedInFilter(path string) bson.D {
	or := bson.A{}
	for _, ch := range events.AllChannels() {
		key, _ := channelKey(ch)
		or = append(or, bson.D{{Key: path + "." + key, Value: true}})
	}
	return bson.D{{Key: "$or", Value: or}}
}

func toDocument(p Preference) (bson.M, error) {
	raw, err := bson.Marshal(p)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func channelKey(ch events.Channel) (string, bool) {
	switch ch {
	case events.ChannelEmail:
		return "email", true
	case events.ChannelPush:
		return "push", true
	case events.ChannelSMS:
		return "sms", true
	case events.ChannelInApp:
		return "in_app", true
	case events.ChannelWebhook:
		return "webhook", true
	}
	return "", false
}

var notificationTypeKeys = map[events.NotificationType]string{
	events.TypeLifecycle:       "lifecycle",
	events.TypeReminders:       "reminders",
	events.TypeBilling:         "billing",
	events.TypeNewInsights:     "new_insights",
	events.TypePremiumInsights: "premium_insights",
	events.TypeDigest:          "digest",
	events.TypeRequests:        "requests",
	events.TypeComments:        "comments",
	events.TypeLikes:           "likes",
	events.TypeFollows:         "follows",
	events.TypeAnnouncements:   "announcements",
	events.TypeMaintenance:     "maintenance",
	events.TypeAdminAlerts:     "admin_alerts",
	events.TypeAccess:          "access",
}

func flagsPath(cat events.Category, nt events.NotificationType) (string, bool) {
	var probe Categories
	if _, ok := probe.Flags(cat, nt); !ok {
		return "", false
	}
	return "categories." + string(cat) + "." + notificationTypeKeys[nt], true
}
