// internal/app/store/identities/identitystore.go
package identitystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/eldercircle/internal/app/system/normalize"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

const (
	// Collection is the MongoDB collection holding sign-in credentials.
	Collection = "identities"
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
	// BcryptCost for hashing passwords.
	BcryptCost = 10
)

var (
	// ErrEmailInUse is returned when the email already has an identity.
	ErrEmailInUse = errors.New("email address is already in use")
	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = fmt.Errorf("password should be at least %d characters", MinPasswordLength)
	// ErrInvalidEmail is returned for an empty email.
	ErrInvalidEmail = errors.New("email address is invalid")
	// ErrInvalidCredentials is returned by Authenticate for any mismatch.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrWrongPassword is returned by ChangePassword when the current password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrPasswordReused is returned when the new password equals the current one.
	ErrPasswordReused = errors.New("new password cannot be the same as your current password")
)

// Store creates and checks email+password identities.
type Store struct {
	c    *mongo.Collection
	cost int
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection), cost: BcryptCost}
}

// Create registers email with password and returns the new identity ID.
func (s *Store) Create(ctx context.Context, email, password string) (primitive.ObjectID, error) {
	email = normalize.Email(email)
	if email == "" {
		return primitive.NilObjectID, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return primitive.NilObjectID, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("hash password: %w", err)
	}

	id := models.Identity{
		ID:           primitive.NewObjectID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, id); err != nil {
		if wafflemongo.IsDup(err) {
			return primitive.NilObjectID, ErrEmailInUse
		}
		return primitive.NilObjectID, err
	}
	return id.ID, nil
}

// Authenticate returns the identity ID for a matching email and password.
func (s *Store) Authenticate(ctx context.Context, email, password string) (primitive.ObjectID, error) {
	var id models.Identity
	err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&id)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return primitive.NilObjectID, ErrInvalidCredentials
		}
		return primitive.NilObjectID, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(password)); err != nil {
		return primitive.NilObjectID, ErrInvalidCredentials
	}
	return id.ID, nil
}

// ChangePassword replaces the password of identity id after checking current.
// Returns mongo.ErrNoDocuments if the identity does not exist.
func (s *Store) ChangePassword(ctx context.Context, id primitive.ObjectID, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}

	var ident models.Identity
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&ident); err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	if bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(next)) == nil {
		return ErrPasswordReused
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "password_hash": ident.PasswordHash},
		bson.M{"$set": bson.M{"password_hash": string(hash), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	// changed by a concurrent request since we read it
	if res.MatchedCount == 0 {
		return ErrWrongPassword
	}
	return nil
}

// Delete removes an identity. Deleting a missing identity succeeds.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
