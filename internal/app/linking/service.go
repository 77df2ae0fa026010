// Package linking implements the elder/family linking and approval workflow.
//
// An elder owns an invitation code. A family member registers against it and
// waits in the elder's pending queue until the elder approves or rejects the
// request. The elder can later unlink an approved family member, which keeps
// the family account but clears its link.
//
// The service is stateless: every call names the ids it acts on. Writes that
// belong together run through a Transactor.
package linking

import (
	"context"
	"errors"

	"github.com/dalemusser/eldercircle/internal/app/system/eldercode"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// MaxCodeAttempts bounds elder code generation when no limit is configured.
const MaxCodeAttempts = 10

// Identities creates and removes sign-in credentials.
type Identities interface {
	Create(ctx context.Context, email, password string) (primitive.ObjectID, error)
	ChangePassword(ctx context.Context, id primitive.ObjectID, current, next string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Users persists user records. Lookups return mongo.ErrNoDocuments on a miss.
type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetElderByCode(ctx context.Context, code string) (*models.User, error)
	ElderCodeExists(ctx context.Context, code string) (bool, error)
	SetApproved(ctx context.Context, familyID, elderID primitive.ObjectID, approved bool) error
	LinkToElder(ctx context.Context, familyID, elderID primitive.ObjectID) (bool, error)
	ClearElderLink(ctx context.Context, familyID, elderID primitive.ObjectID) (bool, error)
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
	ListApprovedFamily(ctx context.Context, elderID primitive.ObjectID) ([]models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, name, phone string) (*models.User, error)
	Touch(ctx context.Context, id primitive.ObjectID) error
}

// Elders persists elder extensions. Lookups return mongo.ErrNoDocuments on a miss.
type Elders interface {
	Create(ctx context.Context, elderID primitive.ObjectID) (models.ElderExtension, error)
	Get(ctx context.Context, elderID primitive.ObjectID) (*models.ElderExtension, error)
	AddAssigned(ctx context.Context, elderID, familyID primitive.ObjectID) error
	RemoveAssigned(ctx context.Context, elderID, familyID primitive.ObjectID) error
}

// Pending persists pending requests keyed by (elder, family).
type Pending interface {
	Add(ctx context.Context, pr models.PendingRequest) (models.PendingRequest, error)
	Remove(ctx context.Context, elderID, familyID primitive.ObjectID) (bool, error)
	ListByElder(ctx context.Context, elderID primitive.ObjectID) ([]models.PendingRequest, error)
	CountByElder(ctx context.Context, elderID primitive.ObjectID) (int64, error)
}

// Transactor runs fn as one logical transaction. Store calls must use the
// ctx passed to fn.
type Transactor interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps wires a Service.
type Deps struct {
	Identities Identities
	Users      Users
	Elders     Elders
	Pending    Pending
	Tx         Transactor
	Log        *zap.Logger

	// NewCode generates candidate elder codes. Defaults to eldercode.Generate.
	NewCode func() (string, error)
	// MaxCodeAttempts bounds code generation. Defaults to MaxCodeAttempts.
	MaxCodeAttempts int
}

// Service runs the linking workflow.
type Service struct {
	identities Identities
	users      Users
	elders     Elders
	pending    Pending
	tx         Transactor
	log        *zap.Logger

	newCode         func() (string, error)
	maxCodeAttempts int
}

// New builds a Service from d.
func New(d Deps) *Service {
	s := &Service{
		identities:      d.Identities,
		users:           d.Users,
		elders:          d.Elders,
		pending:         d.Pending,
		tx:              d.Tx,
		log:             d.Log,
		newCode:         d.NewCode,
		maxCodeAttempts: d.MaxCodeAttempts,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.newCode == nil {
		s.newCode = eldercode.Generate
	}
	if s.maxCodeAttempts <= 0 {
		s.maxCodeAttempts = MaxCodeAttempts
	}
	if s.tx == nil {
		s.tx = direct{}
	}
	return s
}

// direct runs fn without a transaction.
type direct struct{}

func (direct) Run(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func isNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// requireElder loads the elder extension or returns a NotFoundError.
func (s *Service) requireElder(ctx context.Context, op string, elderID primitive.ObjectID) (*models.ElderExtension, error) {
	ext, err := s.elders.Get(ctx, elderID)
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Kind: "elder", ID: elderID.Hex()}
		}
		return nil, &PersistenceError{Op: op, Err: err}
	}
	return ext, nil
}

// requireFamily loads a family user record or returns a NotFoundError.
func (s *Service) requireFamily(ctx context.Context, op string, familyID primitive.ObjectID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, familyID)
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Kind: "family member", ID: familyID.Hex()}
		}
		return nil, &PersistenceError{Op: op, Err: err}
	}
	if !u.IsFamily() {
		return nil, &NotFoundError{Kind: "family member", ID: familyID.Hex()}
	}
	return u, nil
}
