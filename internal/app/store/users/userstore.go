package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/eldercircle/internal/app/system/normalize"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding user records.
const Collection = "users"

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrDuplicateElderCode is returned when the elder code is already taken.
	ErrDuplicateElderCode = errors.New("elder code already in use")

	errBadType      = errors.New(`user_type must be "elder"|"family"`)
	errCodeNeeded   = errors.New("elder must have elder_code")
	errFamilyFields = errors.New("family must not carry elder fields")
)

// GetByID loads a user by ObjectID. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetElderByCode loads the elder owning code. Returns mongo.ErrNoDocuments if none does.
func (s *Store) GetElderByCode(ctx context.Context, code string) (*models.User, error) {
	var u models.User
	filter := bson.M{"user_type": models.UserTypeElder, "elder_code": normalize.ElderCode(code)}
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ElderCodeExists reports whether any elder already holds code.
func (s *Store) ElderCodeExists(ctx context.Context, code string) (bool, error) {
	err := s.c.FindOne(ctx,
		bson.M{"elder_code": normalize.ElderCode(code)},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if err == nil {
		return true, nil
	}
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	return false, err
}

// Create inserts a new user after normalizing & validating fields.
// A zero ID is replaced with a new ObjectID; callers that already hold an
// identity ID pass it in so both records share it.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Email = normalize.Email(u.Email)
	u.Phone = normalize.Phone(u.Phone)

	switch u.UserType {
	case models.UserTypeElder:
		u.ElderCode = normalize.ElderCode(u.ElderCode)
		if u.ElderCode == "" {
			return models.User{}, errCodeNeeded
		}
	case models.UserTypeFamily:
		if u.ElderCode != "" || u.Age != 0 {
			return models.User{}, errFamilyFields
		}
		u.Relation = normalize.Relation(u.Relation)
	default:
		return models.User{}, errBadType
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.LastActive = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			if strings.Contains(err.Error(), "elder_code") {
				return models.User{}, ErrDuplicateElderCode
			}
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// SetApproved sets the approval flag of a family record linked to elderID.
// Returns mongo.ErrNoDocuments if no family record with this ID points at
// elderID, so an approval never lands on a link that changed underneath it.
func (s *Store) SetApproved(ctx context.Context, familyID, elderID primitive.ObjectID, approved bool) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": familyID, "user_type": models.UserTypeFamily, "elder_id": elderID},
		bson.M{"$set": bson.M{"is_approved": approved, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// LinkToElder points an unlinked family record at elderID, unapproved.
// A record that is already linked is left alone and false is returned.
func (s *Store) LinkToElder(ctx context.Context, familyID, elderID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": familyID, "user_type": models.UserTypeFamily, "elder_id": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"elder_id": elderID, "is_approved": false, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// ClearElderLink removes a family record's link to elderID and resets its
// approval. Records linked to a different elder (or to none) are left
// alone; the return value reports whether anything changed.
func (s *Store) ClearElderLink(ctx context.Context, familyID, elderID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": familyID, "user_type": models.UserTypeFamily, "elder_id": elderID},
		bson.M{
			"$set":   bson.M{"is_approved": false, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"elder_id": ""},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// Delete removes a user by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListApprovedFamily returns the approved family records linked to elderID,
// ordered by name.
func (s *Store) ListApprovedFamily(ctx context.Context, elderID primitive.ObjectID) ([]models.User, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"user_type": models.UserTypeFamily, "elder_id": elderID, "is_approved": true},
		options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.User{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile sets the editable contact fields of a user and returns the
// updated record. Returns mongo.ErrNoDocuments if the user does not exist.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, name, phone string) (*models.User, error) {
	name = normalize.Name(name)
	phone = normalize.Phone(phone)
	now := time.Now().UTC()
	set := bson.M{
		"name":        name,
		"name_ci":     text.Fold(name),
		"updated_at":  now,
		"last_active": now,
	}
	update := bson.M{"$set": set}
	if phone == "" {
		update["$unset"] = bson.M{"phone": ""}
	} else {
		set["phone"] = phone
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var u models.User
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Touch records activity for a user.
func (s *Store) Touch(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_active": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
