// Package mongorepos keeps the notification feed in MongoDB.
package mongorepos

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
)

const notificationCollection = "notifications"

// Connect connects to the MongoDB server at uri and waits for it to answer.
func Connect(ctx context.Context, uri string, policy core.RetryPolicy) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	err = core.Retry(ctx, policy, func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return client, nil
}

type notificationRepository struct {
	coll *mongo.Collection
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *mongo.Database) *notificationRepository {
	return &notificationRepository{coll: db.Collection(notificationCollection)}
}

// EnsureIndexes creates the index the feed is read with.
func (repo *notificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return errors.Wrap(err, "creating notification indexes")
}

// SaveNotifications is idempotent: saving a notification again keeps the stored one.
func (repo *notificationRepository) SaveNotifications(ctx context.Context, notifs ...notification.Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(notifs))
	for _, n := range notifs {
		n.CreatedAt = n.CreatedAt.UTC()
		docs = append(docs, n)
	}
	_, err := repo.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(err, "inserting notifications")
	}
	return nil
}

func (repo *notificationRepository) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	filter := bson.M{"recipient_id": recipientID}
	if unreadOnly {
		filter["is_read"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "listing notifications")
	}
	notifs := make([]notification.Notification, 0)
	if err = cursor.All(ctx, &notifs); err != nil {
		return nil, errors.Wrap(err, "decoding notifications")
	}
	for i := range notifs {
		notifs[i].CreatedAt = notifs[i].CreatedAt.UTC()
	}
	return notifs, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, recipientID string, ids ...string) (int, error) {
	filter := bson.M{"recipient_id": recipientID}
	if len(ids) > 0 {
		filter["_id"] = bson.M{"$in": ids}
	} else {
		filter["is_read"] = false
	}
	res, err := repo.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return int(res.MatchedCount), nil
}
