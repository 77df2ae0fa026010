package linking

import (
	"context"
	"errors"

	userstore "github.com/dalemusser/eldercircle/internal/app/store/users"
	"github.com/dalemusser/eldercircle/internal/app/system/eldercode"
	"github.com/dalemusser/eldercircle/internal/app/system/htmlsanitize"
	"github.com/dalemusser/eldercircle/internal/app/system/inputval"
	"github.com/dalemusser/eldercircle/internal/app/system/normalize"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ElderRegistration is the input to RegisterElder.
type ElderRegistration struct {
	Email    string `json:"email" validate:"required,email" label:"Email"`
	Password string `json:"password" label:"Password"`
	Name     string `json:"name" validate:"required,max=100" label:"Name"`
	Age      int    `json:"age" validate:"gte=1,lte=130" label:"Age"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=32" label:"Phone"`
}

// FamilyRegistration is the input to RegisterFamily.
type FamilyRegistration struct {
	Email               string `json:"email" validate:"required,email" label:"Email"`
	Password            string `json:"password" label:"Password"`
	Name                string `json:"name" validate:"required,max=100" label:"Name"`
	Phone               string `json:"phone,omitempty" validate:"omitempty,max=32" label:"Phone"`
	Relation            string `json:"relation" validate:"required,relation" label:"Relation"`
	RelationDescription string `json:"relation_description,omitempty" validate:"required_if=Relation other,max=200" label:"Relation description"`
	ElderCode           string `json:"elder_code" label:"Elder code"`
}

func (in *ElderRegistration) clean() {
	in.Email = normalize.Email(in.Email)
	in.Name = htmlsanitize.PlainText(normalize.Name(in.Name))
	in.Phone = normalize.Phone(in.Phone)
}

func (in *FamilyRegistration) clean() {
	in.Email = normalize.Email(in.Email)
	in.Name = htmlsanitize.PlainText(normalize.Name(in.Name))
	in.Phone = normalize.Phone(in.Phone)
	in.Relation = normalize.Relation(in.Relation)
	in.RelationDescription = htmlsanitize.PlainText(normalize.Name(in.RelationDescription))
	in.ElderCode = eldercode.Normalize(in.ElderCode)
}

func validate(in any) error {
	if res := inputval.Validate(in); res.HasErrors() {
		return &ValidationError{Field: res.FirstField(), Msg: res.All()}
	}
	return nil
}

// GenerateElderCode returns a code no elder holds yet. Collisions are
// retried up to the configured attempt limit.
func (s *Service) GenerateElderCode(ctx context.Context) (string, error) {
	const op = "generate elder code"
	for i := 0; i < s.maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", &PersistenceError{Op: op, Err: err}
		}
		exists, err := s.users.ElderCodeExists(ctx, code)
		if err != nil {
			return "", &PersistenceError{Op: op, Err: err}
		}
		if !exists {
			return code, nil
		}
		s.log.Debug("elder code collision", zap.String("code", code), zap.Int("attempt", i+1))
	}
	return "", &PersistenceError{Op: op, Err: ErrCodeSpaceExhausted}
}

// RegisterElder creates the elder's identity, user record (with a fresh
// code) and empty extension. If the records cannot be written the identity
// is removed again.
func (s *Service) RegisterElder(ctx context.Context, in ElderRegistration) (*models.User, error) {
	const op = "register elder"
	in.clean()
	if err := validate(&in); err != nil {
		return nil, err
	}

	id, err := s.identities.Create(ctx, in.Email, in.Password)
	if err != nil {
		return nil, &IdentityCreationError{Err: err}
	}

	var created models.User
	for attempt := 0; ; attempt++ {
		code, err := s.GenerateElderCode(ctx)
		if err != nil {
			s.compensate(ctx, id)
			return nil, err
		}
		err = s.tx.Run(ctx, func(ctx context.Context) error {
			u, err := s.users.Create(ctx, models.User{
				ID:        id,
				UserType:  models.UserTypeElder,
				Name:      in.Name,
				Email:     in.Email,
				Phone:     in.Phone,
				Age:       in.Age,
				ElderCode: code,
			})
			if err != nil {
				return err
			}
			if _, err := s.elders.Create(ctx, id); err != nil {
				return err
			}
			created = u
			return nil
		})
		if err == nil {
			break
		}
		// another registration took the code between check and insert
		if errors.Is(err, userstore.ErrDuplicateElderCode) && attempt+1 < s.maxCodeAttempts {
			s.log.Info("elder code taken during insert; regenerating", zap.String("code", code))
			continue
		}
		s.compensate(ctx, id)
		if errors.Is(err, userstore.ErrDuplicateElderCode) {
			err = ErrCodeSpaceExhausted
		}
		return nil, persistence(op, err)
	}

	return &created, nil
}

// RegisterFamily checks the elder code, creates the family identity and
// user record, and queues a pending request with the elder. The family
// record starts unapproved.
func (s *Service) RegisterFamily(ctx context.Context, in FamilyRegistration) (*models.User, error) {
	const op = "register family member"
	in.clean()
	if err := validate(&in); err != nil {
		return nil, err
	}

	elder, err := s.elderForCode(ctx, op, in.ElderCode)
	if err != nil {
		return nil, err
	}

	id, err := s.identities.Create(ctx, in.Email, in.Password)
	if err != nil {
		return nil, &IdentityCreationError{Err: err}
	}

	var created models.User
	err = s.tx.Run(ctx, func(ctx context.Context) error {
		elderID := elder.ID
		u, err := s.users.Create(ctx, models.User{
			ID:                  id,
			UserType:            models.UserTypeFamily,
			Name:                in.Name,
			Email:               in.Email,
			Phone:               in.Phone,
			Relation:            in.Relation,
			RelationDescription: in.RelationDescription,
			ElderID:             &elderID,
			IsApproved:          false,
		})
		if err != nil {
			return err
		}
		if _, err := s.pending.Add(ctx, models.PendingRequest{
			ElderID:  elder.ID,
			FamilyID: u.ID,
			Name:     u.Name,
			Relation: u.Relation,
		}); err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		s.compensate(ctx, id)
		return nil, persistence(op, err)
	}
	return &created, nil
}

// RequestLink queues an existing, unlinked family account with the elder
// owning code. This is how an unlinked family member re-registers.
func (s *Service) RequestLink(ctx context.Context, familyID primitive.ObjectID, code string) (*models.PendingRequest, error) {
	const op = "request elder link"
	fam, err := s.requireFamily(ctx, op, familyID)
	if err != nil {
		return nil, err
	}
	if fam.ElderID != nil {
		return nil, ErrAlreadyLinked
	}
	elder, err := s.elderForCode(ctx, op, eldercode.Normalize(code))
	if err != nil {
		return nil, err
	}

	var pr models.PendingRequest
	err = s.tx.Run(ctx, func(ctx context.Context) error {
		linked, err := s.users.LinkToElder(ctx, familyID, elder.ID)
		if err != nil {
			return err
		}
		if !linked {
			return ErrAlreadyLinked
		}
		pr, err = s.pending.Add(ctx, models.PendingRequest{
			ElderID:  elder.ID,
			FamilyID: familyID,
			Name:     fam.Name,
			Relation: fam.Relation,
		})
		return err
	})
	if err != nil {
		return nil, persistence(op, err)
	}
	return &pr, nil
}

func (s *Service) elderForCode(ctx context.Context, op, code string) (*models.User, error) {
	if !eldercode.Valid(code) {
		return nil, &InvalidElderCodeError{Code: code}
	}
	elder, err := s.users.GetElderByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return nil, &InvalidElderCodeError{Code: code}
		}
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return elder, nil
}

// compensate removes an identity whose records could not be committed.
// Without transaction support some of those records may have been written,
// so a user record under the same id is removed first.
func (s *Service) compensate(ctx context.Context, id primitive.ObjectID) {
	if _, err := s.users.Delete(ctx, id); err != nil {
		s.log.Warn("failed to remove partial user record",
			zap.String("user_id", id.Hex()),
			zap.Error(err))
	}
	if err := s.identities.Delete(ctx, id); err != nil {
		s.log.Error("failed to remove identity after registration failure",
			zap.String("identity_id", id.Hex()),
			zap.Error(err))
	}
}
