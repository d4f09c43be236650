package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chiyaghar/teashop/internal/domain"
)

const ordersCollection = "orders"

type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}

	b := &MongoBackend{
		client:     client,
		collection: client.Database(database).Collection(ordersCollection),
	}
	if err := b.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return b, nil
}

func (b *MongoBackend) ensureIndexes(ctx context.Context) error {
	_, err := b.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return errors.Wrap(err, "create order indexes")
	}
	return nil
}

func (b *MongoBackend) Create(ctx context.Context, order *domain.Order) error {
	if _, err := b.collection.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Wrap(ErrDuplicateID, order.ID)
		}
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (b *MongoBackend) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := b.collection.FindOne(ctx, bson.M{"id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	return &o, nil
}

func (b *MongoBackend) UpdateStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	res, err := b.collection.UpdateOne(ctx,
		bson.M{"id": id},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: status}}}},
	)
	if err != nil {
		return false, errors.Wrap(err, "update status")
	}
	return res.MatchedCount > 0, nil
}

func (b *MongoBackend) MarkPaid(ctx context.Context, id string, paidAt int64, payment domain.Payment) (bool, error) {
	res, err := b.collection.UpdateOne(ctx,
		bson.M{"id": id},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: domain.StatusPaid},
			{Key: "paidAt", Value: paidAt},
			{Key: "payment", Value: payment},
		}}},
	)
	if err != nil {
		return false, errors.Wrap(err, "mark paid")
	}
	return res.MatchedCount > 0, nil
}

func (b *MongoBackend) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	cursor, err := b.collection.Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	orders := make([]domain.Order, 0, limit)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return orders, nil
}

func (b *MongoBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, nil)
}

func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}
