// internal/app/store/elders/elderstore.go
package elderstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/eldercircle/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection is the MongoDB collection holding elder extensions.
const Collection = "elders"

// ErrExists is returned when an extension already exists for the elder.
var ErrExists = errors.New("elder extension already exists")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Create inserts an empty extension for elderID.
func (s *Store) Create(ctx context.Context, elderID primitive.ObjectID) (models.ElderExtension, error) {
	now := time.Now().UTC()
	ext := models.ElderExtension{
		ID:                elderID,
		AssignedFamilyIDs: []primitive.ObjectID{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.c.InsertOne(ctx, ext); err != nil {
		if wafflemongo.IsDup(err) {
			return models.ElderExtension{}, ErrExists
		}
		return models.ElderExtension{}, err
	}
	return ext, nil
}

// Get loads the extension for elderID. Returns mongo.ErrNoDocuments if missing.
func (s *Store) Get(ctx context.Context, elderID primitive.ObjectID) (*models.ElderExtension, error) {
	var ext models.ElderExtension
	if err := s.c.FindOne(ctx, bson.M{"_id": elderID}).Decode(&ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

// AddAssigned adds familyID to the assigned set ($addToSet, so repeats are no-ops).
// Returns mongo.ErrNoDocuments if the extension is missing.
func (s *Store) AddAssigned(ctx context.Context, elderID, familyID primitive.ObjectID) error {
	return s.update(ctx, elderID, bson.M{
		"$addToSet": bson.M{"assigned_family_ids": familyID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
}

// RemoveAssigned removes familyID from the assigned set. Removing an absent
// ID succeeds. Returns mongo.ErrNoDocuments if the extension is missing.
func (s *Store) RemoveAssigned(ctx context.Context, elderID, familyID primitive.ObjectID) error {
	return s.update(ctx, elderID, bson.M{
		"$pull": bson.M{"assigned_family_ids": familyID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (s *Store) update(ctx context.Context, elderID primitive.ObjectID, upd bson.M) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": elderID}, upd)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
