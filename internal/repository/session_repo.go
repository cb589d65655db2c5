package repository

import (
	"context"
	"liveclass/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionRepo is the single source of truth for sessions. Capacity and
// status mutations are conditional updates so the invariants hold under
// arbitrary interleaving without service-level locks.
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// GetJoinableByCode finds the session holding a room code whose status
	// is not ended. Returns (nil, nil) when no such session exists.
	GetJoinableByCode(ctx context.Context, code string) (*model.Session, error)
	ListByStatus(ctx context.Context, statuses ...model.SessionStatus) ([]*model.Session, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Session, error)
	ListStaleActive(ctx context.Context, createdBefore time.Time) ([]*model.Session, error)
	// UpdateInfo rewrites display metadata while the session is still
	// waiting. Returns false if the session is missing or past waiting.
	UpdateInfo(ctx context.Context, id, title, description, subject string) (bool, error)
	// TransitionStatus atomically moves the session from one of the given
	// states to the target state, stamping startedAt/endedAt as
	// appropriate. Returns (nil, nil) if no session matched, so a losing
	// racer observes the failure instead of corrupting state.
	TransitionStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus, at time.Time) (*model.Session, error)
	// ReserveSlot is the admission gate: a single check-and-increment that
	// succeeds only while the session is not ended and below capacity.
	ReserveSlot(ctx context.Context, id string) (bool, error)
	ReleaseSlot(ctx context.Context, id string) error
	ResetSlots(ctx context.Context, id string) error
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetJoinableByCode(ctx context.Context, code string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{
		"roomCode": code,
		"status":   bson.M{"$ne": model.SessionEnded},
	}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ListByStatus(ctx context.Context, statuses ...model.SessionStatus) ([]*model.Session, error) {
	return r.list(ctx, bson.M{"status": bson.M{"$in": statuses}})
}

func (r *sessionRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Session, error) {
	return r.list(ctx, bson.M{"ownerId": ownerID})
}

func (r *sessionRepo) ListStaleActive(ctx context.Context, createdBefore time.Time) ([]*model.Session, error) {
	return r.list(ctx, bson.M{
		"status":    bson.M{"$ne": model.SessionEnded},
		"createdAt": bson.M{"$lt": createdBefore},
	})
}

func (r *sessionRepo) list(ctx context.Context, filter bson.M) ([]*model.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) UpdateInfo(ctx context.Context, id, title, description, subject string) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.SessionWaiting},
		bson.M{"$set": bson.M{
			"title":       title,
			"description": description,
			"subject":     subject,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, id string, from []model.SessionStatus, to model.SessionStatus, at time.Time) (*model.Session, error) {
	set := bson.M{"status": to}
	switch to {
	case model.SessionLive:
		set["startedAt"] = at
	case model.SessionEnded:
		set["endedAt"] = at
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var session model.Session
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
		opts,
	).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ReserveSlot(ctx context.Context, id string) (bool, error) {
	res, err := r.collection.UpdateOne(ctx, bson.M{
		"_id":    id,
		"status": bson.M{"$ne": model.SessionEnded},
		"$expr":  bson.M{"$lt": bson.A{"$currentParticipants", "$maxParticipants"}},
	}, bson.M{"$inc": bson.M{"currentParticipants": 1}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *sessionRepo) ReleaseSlot(ctx context.Context, id string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{
		"_id":                 id,
		"currentParticipants": bson.M{"$gt": 0},
	}, bson.M{"$inc": bson.M{"currentParticipants": -1}})
	return err
}

func (r *sessionRepo) ResetSlots(ctx context.Context, id string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"currentParticipants": 0}},
	)
	return err
}
