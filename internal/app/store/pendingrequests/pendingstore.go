// internal/app/store/pendingrequests/pendingstore.go
package pendingstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/eldercircle/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding pending family requests,
// one document per (elder_id, family_id).
const Collection = "pending_requests"

// ErrDuplicateRequest is returned when the pair already has a pending request.
var ErrDuplicateRequest = errors.New("a request for this family member is already pending")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Add inserts a pending request. RequestedAt defaults to now.
func (s *Store) Add(ctx context.Context, pr models.PendingRequest) (models.PendingRequest, error) {
	pr.ID = primitive.NewObjectID()
	if pr.RequestedAt.IsZero() {
		pr.RequestedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, pr); err != nil {
		if wafflemongo.IsDup(err) {
			return models.PendingRequest{}, ErrDuplicateRequest
		}
		return models.PendingRequest{}, err
	}
	return pr, nil
}

// Remove deletes the request for (elderID, familyID) and reports whether
// one existed.
func (s *Store) Remove(ctx context.Context, elderID, familyID primitive.ObjectID) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"elder_id": elderID, "family_id": familyID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// ListByElder returns an elder's pending requests, oldest first.
func (s *Store) ListByElder(ctx context.Context, elderID primitive.ObjectID) ([]models.PendingRequest, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"elder_id": elderID},
		options.Find().SetSort(bson.D{{Key: "requested_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.PendingRequest{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByElder returns how many requests await elderID.
func (s *Store) CountByElder(ctx context.Context, elderID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"elder_id": elderID})
}
