package linking

import (
	"context"
	"errors"

	identitystore "github.com/dalemusser/eldercircle/internal/app/store/identities"
	"github.com/dalemusser/eldercircle/internal/app/system/htmlsanitize"
	"github.com/dalemusser/eldercircle/internal/app/system/normalize"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProfileUpdate is the input to UpdateProfile. Email, user type and the
// elder link are not editable here.
type ProfileUpdate struct {
	Name  string `json:"name" validate:"required,max=100" label:"Name"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32" label:"Phone"`
}

func (in *ProfileUpdate) clean() {
	in.Name = htmlsanitize.PlainText(normalize.Name(in.Name))
	in.Phone = normalize.Phone(in.Phone)
}

// PasswordChange is the input to ChangePassword.
type PasswordChange struct {
	CurrentPassword string `json:"current_password" validate:"required" label:"Current password"`
	NewPassword     string `json:"new_password" validate:"required" label:"New password"`
	ConfirmPassword string `json:"confirm_password" validate:"required" label:"Confirm password"`
}

// UpdateProfile edits the caller's name and phone and returns the new record.
func (s *Service) UpdateProfile(ctx context.Context, userID primitive.ObjectID, in ProfileUpdate) (*models.User, error) {
	in.clean()
	if err := validate(&in); err != nil {
		return nil, err
	}
	u, err := s.users.UpdateProfile(ctx, userID, in.Name, in.Phone)
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Kind: "user", ID: userID.Hex()}
		}
		return nil, &PersistenceError{Op: "update profile", Err: err}
	}
	return u, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID primitive.ObjectID, in PasswordChange) error {
	if err := validate(&in); err != nil {
		return err
	}
	if in.NewPassword != in.ConfirmPassword {
		return &ValidationError{Field: "ConfirmPassword", Msg: "New passwords do not match."}
	}

	err := s.identities.ChangePassword(ctx, userID, in.CurrentPassword, in.NewPassword)
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return &NotFoundError{Kind: "user", ID: userID.Hex()}
	case errors.Is(err, identitystore.ErrWrongPassword),
		errors.Is(err, identitystore.ErrWeakPassword),
		errors.Is(err, identitystore.ErrPasswordReused):
		return &PasswordChangeError{Err: err}
	default:
		return &PersistenceError{Op: "change password", Err: err}
	}
}
