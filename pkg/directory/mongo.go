package directory

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is the users collection name.
const DefaultCollection = "users"

// MongoDirectory reads users from a MongoDB collection. Documents use the
// bson tags declared on User.
type MongoDirectory struct {
	coll *mongo.Collection
}

// NewMongoDirectory returns a directory over coll.
func NewMongoDirectory(coll *mongo.Collection) *MongoDirectory {
	return &MongoDirectory{coll: coll}
}

func (d *MongoDirectory) FindByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrEmptyUserID
	}
	var u User
	err := d.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, errors.Join(ErrLookupFailed, err)
	}
	return u, nil
}

func (d *MongoDirectory) FindByRoles(ctx context.Context, roles ...string) ([]User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	filter := bson.D{
		{Key: "role", Value: bson.D{{Key: "$in", Value: roles}}},
		{Key: "is_active", Value: true},
	}
	return d.find(ctx, filter)
}

func (d *MongoDirectory) FindByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return d.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
}

func (d *MongoDirectory) find(ctx context.Context, filter bson.D) ([]User, error) {
	cur, err := d.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Join(ErrLookupFailed, err)
	}
	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, errors.Join(ErrLookupFailed, fmt.Errorf("decode users: %w", err))
	}
	return users, nil
}

// EnsureIndexes creates the indexes used by FindByRoles.
func (d *MongoDirectory) EnsureIndexes(ctx context.Context) error {
	_, err := d.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "role", Value: 1}, {Key: "is_active", Value: 1}},
	})
	return err
}
