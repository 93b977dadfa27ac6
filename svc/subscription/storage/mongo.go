package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	pkgmongo "github.com/dmitrymomot/subscription-api/pkg/mongo"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

// DefaultCollection holds subscription documents.
const DefaultCollection = "subscriptions"

type subscriptionDoc struct {
	ID                     bson.ObjectID `bson:"_id"`
	UserID                 string        `bson:"user_id"`
	PlanID                 string        `bson:"plan_id"`
	Status                 string        `bson:"status"`
	ProviderSessionID      string        `bson:"provider_session_id"`
	ProviderSubscriptionID string        `bson:"provider_subscription_id,omitempty"`
	CreatedAt              time.Time     `bson:"created_at"`
	UpdatedAt              time.Time     `bson:"updated_at"`
}

func (d subscriptionDoc) toModel() *subscription.Subscription {
	return &subscription.Subscription{
		ID:                     d.ID.Hex(),
		UserID:                 d.UserID,
		PlanID:                 d.PlanID,
		Status:                 subscription.Status(d.Status),
		ProviderSessionID:      d.ProviderSessionID,
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

// MongoStore is a subscription.Store backed by a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore returns a store over db.collection. Call EnsureIndexes once
// at startup.
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStore{
		coll: db.Collection(collection),
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the unique session index and the latest-by-user
// index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "provider_session_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("provider_session_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("user_latest"),
		},
	})
	if err != nil {
		return fmt.Errorf("create subscription indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, userID, planID, sessionID string) (*subscription.Subscription, error) {
	now := s.now()
	doc := subscriptionDoc{
		ID:                bson.NewObjectID(),
		UserID:            userID,
		PlanID:            planID,
		Status:            string(subscription.StatusPending),
		ProviderSessionID: sessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if pkgmongo.IsDuplicateKeyError(err) {
			return nil, subscription.ErrDuplicateSession
		}
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) FindBySessionID(ctx context.Context, sessionID string) (*subscription.Subscription, error) {
	return s.findOne(ctx, bson.D{{Key: "provider_session_id", Value: sessionID}}, nil)
}

// FindLatestByUser breaks created_at ties by ObjectID, which grows with
// insertion order.
func (s *MongoStore) FindLatestByUser(ctx context.Context, userID string) (*subscription.Subscription, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return s.findOne(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D, opts *options.FindOneOptionsBuilder) (*subscription.Subscription, error) {
	var res *mongo.SingleResult
	if opts != nil {
		res = s.coll.FindOne(ctx, filter, opts)
	} else {
		res = s.coll.FindOne(ctx, filter)
	}

	var doc subscriptionDoc
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, id string, expected, next subscription.Status, providerSubscriptionID string) (bool, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	set := bson.D{
		{Key: "status", Value: string(next)},
		{Key: "updated_at", Value: s.now()},
	}
	if providerSubscriptionID != "" {
		set = append(set, bson.E{Key: "provider_subscription_id", Value: providerSubscriptionID})
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "status", Value: string(expected)}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return false, fmt.Errorf("update subscription status: %w", err)
	}
	return res.MatchedCount == 1, nil
}
