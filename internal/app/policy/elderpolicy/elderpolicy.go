// Package elderpolicy decides who may read an elder's data.
//
// Authorization rules:
//   - An elder can read their own data
//   - A family member can read the data of the elder they are linked to,
//     once that elder has approved them
//   - Everyone else is denied, including pending and unlinked family members
package elderpolicy

import (
	"context"
	"errors"

	"github.com/dalemusser/eldercircle/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserGetter loads user records. Both the Mongo user store and the
// in-memory test store satisfy it.
type UserGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Policy answers access questions against a user store.
type Policy struct {
	users UserGetter
}

// New returns a Policy reading from users.
func New(users UserGetter) *Policy {
	return &Policy{users: users}
}

// CanReadElder reports whether readerID may read elderID's data.
// A reader that does not exist is denied without error.
func (p *Policy) CanReadElder(ctx context.Context, readerID, elderID primitive.ObjectID) (bool, error) {
	u, err := p.users.GetByID(ctx, readerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}

	switch u.UserType {
	case models.UserTypeElder:
		return u.ID == elderID, nil
	case models.UserTypeFamily:
		return u.IsApproved && u.LinkedTo(elderID), nil
	default:
		return false, nil
	}
}
