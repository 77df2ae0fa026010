package linking

import (
	"context"

	"github.com/dalemusser/eldercircle/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PendingRequests lists the elder's pending requests, oldest first.
func (s *Service) PendingRequests(ctx context.Context, elderID primitive.ObjectID) ([]models.PendingRequest, error) {
	const op = "fetch pending requests"
	if _, err := s.requireElder(ctx, op, elderID); err != nil {
		return nil, err
	}
	out, err := s.pending.ListByElder(ctx, elderID)
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return out, nil
}

// FamilyMembers lists the approved family members linked to elderID.
func (s *Service) FamilyMembers(ctx context.Context, elderID primitive.ObjectID) ([]models.User, error) {
	const op = "fetch family members"
	if _, err := s.requireElder(ctx, op, elderID); err != nil {
		return nil, err
	}
	out, err := s.users.ListApprovedFamily(ctx, elderID)
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return out, nil
}

// ElderOverview summarizes an elder's circle.
type ElderOverview struct {
	ElderCode       string `json:"elder_code"`
	PendingRequests int64  `json:"pending_requests"`
	FamilyMembers   int    `json:"family_members"`
}

// Overview returns the elder's code with pending and assigned counts.
func (s *Service) Overview(ctx context.Context, elderID primitive.ObjectID) (*ElderOverview, error) {
	const op = "fetch elder overview"
	ext, err := s.requireElder(ctx, op, elderID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, elderID)
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Kind: "elder", ID: elderID.Hex()}
		}
		return nil, &PersistenceError{Op: op, Err: err}
	}
	n, err := s.pending.CountByElder(ctx, elderID)
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return &ElderOverview{
		ElderCode:       u.ElderCode,
		PendingRequests: n,
		FamilyMembers:   len(ext.AssignedFamilyIDs),
	}, nil
}

// Profile loads any user record.
func (s *Service) Profile(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Kind: "user", ID: userID.Hex()}
		}
		return nil, &PersistenceError{Op: "fetch user profile", Err: err}
	}
	return u, nil
}

// Touch records activity for userID.
func (s *Service) Touch(ctx context.Context, userID primitive.ObjectID) error {
	if err := s.users.Touch(ctx, userID); err != nil {
		if isNotFound(err) {
			return &NotFoundError{Kind: "user", ID: userID.Hex()}
		}
		return &PersistenceError{Op: "update last active", Err: err}
	}
	return nil
}

// LinkedElder returns the elder a family member may read. It fails with
// ErrNotApproved unless the family record is approved and linked.
func (s *Service) LinkedElder(ctx context.Context, familyID primitive.ObjectID) (*models.User, error) {
	const op = "fetch linked elder"
	fam, err := s.requireFamily(ctx, op, familyID)
	if err != nil {
		return nil, err
	}
	if !fam.IsApproved || fam.ElderID == nil {
		return nil, ErrNotApproved
	}
	elder, err := s.users.GetByID(ctx, *fam.ElderID)
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Kind: "elder", ID: fam.ElderID.Hex()}
		}
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return elder, nil
}
