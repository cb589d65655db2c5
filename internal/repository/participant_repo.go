package repository

import (
	"context"
	"errors"
	"liveclass/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrDuplicateParticipant is returned by Create when the caller already
// holds an active participant record for the session. The partial unique
// index makes concurrent joins by the same user collapse to one record.
var ErrDuplicateParticipant = errors.New("participant already active in session")

type ParticipantRepo interface {
	Create(ctx context.Context, participant *model.Participant) error
	// GetActive returns the caller's active record, or (nil, nil).
	GetActive(ctx context.Context, sessionID, userID string) (*model.Participant, error)
	// MarkLeft stamps LeftAt on the caller's active record. Returns false
	// if there was no active record (leave is idempotent).
	MarkLeft(ctx context.Context, sessionID, userID string, at time.Time) (bool, error)
	// EndAllActive stamps LeftAt on every active record of a session and
	// returns how many were closed. Used by the end-of-session cascade.
	EndAllActive(ctx context.Context, sessionID string, at time.Time) (int64, error)
	ListActive(ctx context.Context, sessionID string) ([]*model.Participant, error)
}

type participantRepo struct {
	collection *mongo.Collection
}

func NewParticipantRepo(db *mongo.Database) ParticipantRepo {
	return &participantRepo{
		collection: db.Collection("participants"),
	}
}

func (r *participantRepo) Create(ctx context.Context, participant *model.Participant) error {
	_, err := r.collection.InsertOne(ctx, participant)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateParticipant
	}
	return err
}

func (r *participantRepo) GetActive(ctx context.Context, sessionID, userID string) (*model.Participant, error) {
	var participant model.Participant
	err := r.collection.FindOne(ctx, bson.M{
		"sessionId": sessionID,
		"userId":    userID,
		"active":    true,
	}).Decode(&participant)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepo) MarkLeft(ctx context.Context, sessionID, userID string, at time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx, bson.M{
		"sessionId": sessionID,
		"userId":    userID,
		"active":    true,
	}, bson.M{"$set": bson.M{"active": false, "leftAt": at}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *participantRepo) EndAllActive(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx, bson.M{
		"sessionId": sessionID,
		"active":    true,
	}, bson.M{"$set": bson.M{"active": false, "leftAt": at}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *participantRepo) ListActive(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"sessionId": sessionID,
		"active":    true,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var participants []*model.Participant
	if err := cursor.All(ctx, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}
