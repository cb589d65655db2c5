package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the repositories rely on. The partial
// unique index on participants is load-bearing: it is what makes two
// concurrent joins by the same user resolve to a single active record.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("sessions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomCode", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "ownerId", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("participants").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": bson.M{"$eq": true}}),
		},
		{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "active", Value: 1}}},
	})
	return err
}
