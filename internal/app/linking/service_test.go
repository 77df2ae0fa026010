package linking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	identitystore "github.com/dalemusser/eldercircle/internal/app/store/identities"
	userstore "github.com/dalemusser/eldercircle/internal/app/store/users"
	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/system/eldercode"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"github.com/dalemusser/eldercircle/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fixture struct {
	svc *linking.Service
	db  *memstore.DB
	tx  *memstore.Tx
}

func newFixture(t *testing.T, opts ...func(*linking.Deps)) *fixture {
	t.Helper()
	db := memstore.New()
	tx := db.Tx()
	deps := linking.Deps{
		Identities: db.Identities(),
		Users:      db.Users(),
		Elders:     db.Elders(),
		Pending:    db.Pending(),
		Tx:         tx,
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(&deps)
	}
	return &fixture{svc: linking.New(deps), db: db, tx: tx}
}

// codes returns a generator yielding the given codes in order, then fresh ones.
func codes(seq ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i < len(seq) {
			c := seq[i]
			i++
			return c, nil
		}
		return eldercode.Generate()
	}
}

func withCodes(seq ...string) func(*linking.Deps) {
	return func(d *linking.Deps) { d.NewCode = codes(seq...) }
}

func (f *fixture) registerElder(t *testing.T, name, email string) *models.User {
	t.Helper()
	u, err := f.svc.RegisterElder(context.Background(), linking.ElderRegistration{
		Email:    email,
		Password: "secret123",
		Name:     name,
		Age:      78,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) registerFamily(t *testing.T, name, email, code string) *models.User {
	t.Helper()
	u, err := f.svc.RegisterFamily(context.Background(), linking.FamilyRegistration{
		Email:     email,
		Password:  "secret123",
		Name:      name,
		Relation:  "son",
		ElderCode: code,
	})
	require.NoError(t, err)
	return u
}

// assertConsistent checks the pending/assigned invariants for one pair.
func (f *fixture) assertConsistent(t *testing.T, elderID, familyID primitive.ObjectID) {
	t.Helper()
	ctx := context.Background()

	ext, err := f.db.Elders().Get(ctx, elderID)
	require.NoError(t, err)
	_, pendErr := f.db.Pending().Get(ctx, elderID, familyID)
	pending := pendErr == nil
	assigned := ext.HasAssigned(familyID)

	assert.False(t, pending && assigned, "family id is both pending and assigned")

	fam, err := f.db.Users().GetByID(ctx, familyID)
	if err != nil {
		assert.False(t, pending, "pending entry for deleted family record")
		assert.False(t, assigned, "assigned id for deleted family record")
		return
	}
	approvedHere := fam.IsApproved && fam.LinkedTo(elderID)
	assert.Equal(t, assigned, approvedHere, "assigned set and approval flag disagree")
	if pending {
		assert.False(t, fam.IsApproved, "pending family record is approved")
	}
}

/* ----------------------------- code generation ---------------------------- */

func TestGenerateElderCode_Format(t *testing.T) {
	f := newFixture(t)
	code, err := f.svc.GenerateElderCode(context.Background())
	require.NoError(t, err)
	assert.True(t, eldercode.Valid(code), "code %q", code)
}

func TestGenerateElderCode_RetriesOnCollision(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD", "E1234-ABCD", "E5678-WXYZ"))
	f.registerElder(t, "Rose", "rose@example.com")

	code, err := f.svc.GenerateElderCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "E5678-WXYZ", code)
}

func TestGenerateElderCode_Exhausted(t *testing.T) {
	f := newFixture(t, func(d *linking.Deps) {
		d.NewCode = func() (string, error) { return "E1111-AAAA", nil }
		d.MaxCodeAttempts = 3
	})
	f.registerElder(t, "Rose", "rose@example.com")

	_, err := f.svc.GenerateElderCode(context.Background())
	require.Error(t, err)
	var pe *linking.PersistenceError
	assert.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, linking.ErrCodeSpaceExhausted)
}

/* ------------------------------ register elder ----------------------------- */

func TestRegisterElder(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	u := f.registerElder(t, "  Rose   Smith ", "Rose@Example.com")

	assert.Equal(t, models.UserTypeElder, u.UserType)
	assert.Equal(t, "E1234-ABCD", u.ElderCode)
	assert.Equal(t, "Rose Smith", u.Name)
	assert.Equal(t, "rose@example.com", u.Email)
	assert.True(t, f.db.HasIdentity(u.ID), "user shares the identity id")

	ext, err := f.db.Elders().Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, ext.AssignedFamilyIDs)
}

func TestRegisterElder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    linking.ElderRegistration
		field string
	}{
		{"bad email", linking.ElderRegistration{Email: "nope", Password: "secret123", Name: "Rose", Age: 70}, "Email"},
		{"missing name", linking.ElderRegistration{Email: "rose@example.com", Password: "secret123", Age: 70}, "Name"},
		{"markup-only name", linking.ElderRegistration{Email: "rose@example.com", Password: "secret123", Name: "<b></b>", Age: 70}, "Name"},
		{"age zero", linking.ElderRegistration{Email: "rose@example.com", Password: "secret123", Name: "Rose"}, "Age"},
		{"age too high", linking.ElderRegistration{Email: "rose@example.com", Password: "secret123", Name: "Rose", Age: 131}, "Age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.RegisterElder(context.Background(), tt.in)
			var ve *linking.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)

			users, elders, _, identities := f.db.Counts()
			assert.Zero(t, users+elders+identities, "nothing written on validation failure")
		})
	}
}

func TestRegisterElder_IdentityRejected(t *testing.T) {
	f := newFixture(t)
	f.registerElder(t, "Rose", "rose@example.com")

	_, err := f.svc.RegisterElder(context.Background(), linking.ElderRegistration{
		Email: "ROSE@example.com", Password: "secret123", Name: "Other Rose", Age: 80,
	})
	var ie *linking.IdentityCreationError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, identitystore.ErrEmailInUse)
	assert.Equal(t, identitystore.ErrEmailInUse.Error(), err.Error(), "surfaced verbatim")

	_, err = f.svc.RegisterElder(context.Background(), linking.ElderRegistration{
		Email: "ann@example.com", Password: "123", Name: "Ann", Age: 80,
	})
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, identitystore.ErrWeakPassword)
}

func TestRegisterElder_CompensatesIdentity(t *testing.T) {
	for _, nonAtomic := range []bool{false, true} {
		t.Run(fmt.Sprintf("nonAtomic=%v", nonAtomic), func(t *testing.T) {
			f := newFixture(t)
			f.tx.NonAtomic = nonAtomic
			f.db.FailOn("elders.Create", errors.New("disk full"))

			_, err := f.svc.RegisterElder(context.Background(), linking.ElderRegistration{
				Email: "rose@example.com", Password: "secret123", Name: "Rose", Age: 78,
			})
			var pe *linking.PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, err.Error(), "disk full")

			users, elders, _, identities := f.db.Counts()
			assert.Zero(t, users, "user record removed")
			assert.Zero(t, elders)
			assert.Zero(t, identities, "identity compensated")
		})
	}
}

// racyUsers reports a duplicate elder code on the first insert, as when
// another registration claims the code between check and insert.
type racyUsers struct {
	*memstore.Users
	once sync.Once
}

func (r *racyUsers) Create(ctx context.Context, u models.User) (models.User, error) {
	var err error
	r.once.Do(func() { err = userstore.ErrDuplicateElderCode })
	if err != nil {
		return models.User{}, err
	}
	return r.Users.Create(ctx, u)
}

func TestRegisterElder_DuplicateCodeOnInsertRegenerates(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD", "E9999-ZZZZ"), func(d *linking.Deps) {
		d.Users = &racyUsers{Users: d.Users.(*memstore.Users)}
	})

	u := f.registerElder(t, "Rose", "rose@example.com")
	assert.Equal(t, "E9999-ZZZZ", u.ElderCode)
}

/* ----------------------------- register family ----------------------------- */

func TestRegisterFamily(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	elder := f.registerElder(t, "Rose", "rose@example.com")

	fam := f.registerFamily(t, "Tom", "tom@example.com", " e1234-abcd ")

	assert.Equal(t, models.UserTypeFamily, fam.UserType)
	assert.False(t, fam.IsApproved)
	require.NotNil(t, fam.ElderID)
	assert.Equal(t, elder.ID, *fam.ElderID)

	pending, err := f.svc.PendingRequests(context.Background(), elder.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fam.ID, pending[0].FamilyID)
	assert.Equal(t, "Tom", pending[0].Name)
	assert.Equal(t, "son", pending[0].Relation)
	f.assertConsistent(t, elder.ID, fam.ID)
}

func TestRegisterFamily_InvalidCode(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	f.registerElder(t, "Rose", "rose@example.com")

	for _, code := range []string{"E0000-0000", "garbage", ""} {
		_, err := f.svc.RegisterFamily(context.Background(), linking.FamilyRegistration{
			Email: "tom@example.com", Password: "secret123", Name: "Tom", Relation: "son", ElderCode: code,
		})
		var ce *linking.InvalidElderCodeError
		require.ErrorAs(t, err, &ce, "code %q", code)
	}

	users, _, pending, identities := f.db.Counts()
	assert.Equal(t, 1, users, "only the elder")
	assert.Zero(t, pending)
	assert.Equal(t, 1, identities, "no identity created for a bad code")
}

func TestRegisterFamily_RelationRules(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	f.registerElder(t, "Rose", "rose@example.com")

	_, err := f.svc.RegisterFamily(context.Background(), linking.FamilyRegistration{
		Email: "tom@example.com", Password: "secret123", Name: "Tom", Relation: "cousin", ElderCode: "E1234-ABCD",
	})
	var ve *linking.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Relation", ve.Field)

	_, err = f.svc.RegisterFamily(context.Background(), linking.FamilyRegistration{
		Email: "tom@example.com", Password: "secret123", Name: "Tom", Relation: "other", ElderCode: "E1234-ABCD",
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "RelationDescription", ve.Field)

	fam, err := f.svc.RegisterFamily(context.Background(), linking.FamilyRegistration{
		Email: "tom@example.com", Password: "secret123", Name: "Tom", Relation: "Other",
		RelationDescription: "<i>neighbour</i>", ElderCode: "E1234-ABCD",
	})
	require.NoError(t, err)
	assert.Equal(t, "other", fam.Relation)
	assert.Equal(t, "neighbour", fam.RelationDescription)
}

func TestRegisterFamily_CompensatesIdentity(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	elder := f.registerElder(t, "Rose", "rose@example.com")
	f.db.FailOn("pending.Add", errors.New("write conflict"))

	_, err := f.svc.RegisterFamily(context.Background(), linking.FamilyRegistration{
		Email: "tom@example.com", Password: "secret123", Name: "Tom", Relation: "son", ElderCode: "E1234-ABCD",
	})
	var pe *linking.PersistenceError
	require.ErrorAs(t, err, &pe)

	users, _, pending, identities := f.db.Counts()
	assert.Equal(t, 1, users)
	assert.Zero(t, pending)
	assert.Equal(t, 1, identities)

	members, err := f.svc.FamilyMembers(context.Background(), elder.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

/* --------------------------------- approve -------------------------------- */

func TestApproveFamily(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")
	fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

	require.NoError(t, f.svc.ApproveFamily(ctx, elder.ID, fam.ID))

	got, err := f.svc.Profile(ctx, fam.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)

	ext, err := f.db.Elders().Get(ctx, elder.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{fam.ID}, ext.AssignedFamilyIDs)

	pending, err := f.svc.PendingRequests(ctx, elder.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	f.assertConsistent(t, elder.ID, fam.ID)

	// idempotent
	require.NoError(t, f.svc.ApproveFamily(ctx, elder.ID, fam.ID))
	ext, err = f.db.Elders().Get(ctx, elder.ID)
	require.NoError(t, err)
	assert.Len(t, ext.AssignedFamilyIDs, 1)
}

func TestApproveFamily_NotFound(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD", "E5678-WXYZ"))
	ctx := context.Background()
	rose := f.registerElder(t, "Rose", "rose@example.com")
	ann := f.registerElder(t, "Ann", "ann@example.com")
	tom := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

	tests := []struct {
		name     string
		elderID  primitive.ObjectID
		familyID primitive.ObjectID
		kind     string
	}{
		{"unknown elder", primitive.NewObjectID(), tom.ID, "elder"},
		{"family id is an elder", rose.ID, ann.ID, "family member"},
		{"unknown family", rose.ID, primitive.NewObjectID(), "family member"},
		{"linked to another elder", ann.ID, tom.ID, "family member"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.ApproveFamily(ctx, tt.elderID, tt.familyID)
			var nf *linking.NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tt.kind, nf.Kind)
		})
	}
	f.assertConsistent(t, rose.ID, tom.ID)
}

func TestApproveFamily_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")
	fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")
	f.db.FailOn("pending.Remove", errors.New("network"))

	err := f.svc.ApproveFamily(ctx, elder.ID, fam.ID)
	var pe *linking.PersistenceError
	require.ErrorAs(t, err, &pe)

	got, err := f.svc.Profile(ctx, fam.ID)
	require.NoError(t, err)
	assert.False(t, got.IsApproved, "flag rolled back")
	f.db.FailOn("pending.Remove", nil)
	f.assertConsistent(t, elder.ID, fam.ID)
}

// interleavingUsers runs hook once, right after the next GetByID returns,
// so a test can commit other operations between a pre-read and the
// transaction that follows it.
type interleavingUsers struct {
	*memstore.Users
	mu   sync.Mutex
	hook func()
}

func (u *interleavingUsers) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	rec, err := u.Users.GetByID(ctx, id)
	u.mu.Lock()
	hook := u.hook
	u.hook = nil
	u.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rec, err
}

func TestApproveFamily_LinkChangedBeforeTransaction(t *testing.T) {
	var users *interleavingUsers
	f := newFixture(t, withCodes("E1234-ABCD", "E5678-WXYZ"), func(d *linking.Deps) {
		users = &interleavingUsers{Users: d.Users.(*memstore.Users)}
		d.Users = users
	})
	ctx := context.Background()
	rose := f.registerElder(t, "Rose", "rose@example.com")
	ann := f.registerElder(t, "Ann", "ann@example.com")
	tom := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

	// Rose unlinks Tom and Tom asks Ann, both after approve has read Tom's
	// record as linked to Rose.
	users.mu.Lock()
	users.hook = func() {
		require.NoError(t, f.svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: rose.ID, FamilyID: tom.ID}))
		_, err := f.svc.RequestLink(ctx, tom.ID, "E5678-WXYZ")
		require.NoError(t, err)
	}
	users.mu.Unlock()

	err := f.svc.ApproveFamily(ctx, rose.ID, tom.ID)
	var nf *linking.NotFoundError
	require.ErrorAs(t, err, &nf)

	got, err := f.svc.Profile(ctx, tom.ID)
	require.NoError(t, err)
	assert.False(t, got.IsApproved, "approval must not carry over to a new link")
	assert.True(t, got.LinkedTo(ann.ID))

	_, err = f.svc.LinkedElder(ctx, tom.ID)
	assert.ErrorIs(t, err, linking.ErrNotApproved)

	ext, err := f.db.Elders().Get(ctx, rose.ID)
	require.NoError(t, err)
	assert.NotContains(t, ext.AssignedFamilyIDs, tom.ID)

	pending, err := f.svc.PendingRequests(ctx, ann.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tom.ID, pending[0].FamilyID)
	f.assertConsistent(t, rose.ID, tom.ID)
	f.assertConsistent(t, ann.ID, tom.ID)
}

/* --------------------------------- reject --------------------------------- */

func TestRejectFamily(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")
	fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

	require.NoError(t, f.svc.RejectFamily(ctx, elder.ID, fam.ID))

	_, err := f.svc.Profile(ctx, fam.ID)
	var nf *linking.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.False(t, f.db.HasIdentity(fam.ID), "identity removed")

	pending, err := f.svc.PendingRequests(ctx, elder.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// resolved exactly once
	err = f.svc.RejectFamily(ctx, elder.ID, fam.ID)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "pending request", nf.Kind)
}

func TestRejectFamily_AfterApproveFails(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")
	fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")
	require.NoError(t, f.svc.ApproveFamily(ctx, elder.ID, fam.ID))

	err := f.svc.RejectFamily(ctx, elder.ID, fam.ID)
	var nf *linking.NotFoundError
	require.ErrorAs(t, err, &nf)

	members, err := f.svc.FamilyMembers(ctx, elder.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, fam.ID, members[0].ID)
	f.assertConsistent(t, elder.ID, fam.ID)
}

func TestRejectFamily_UnknownElder(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RejectFamily(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	var nf *linking.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "elder", nf.Kind)
}

/* --------------------------------- unlink --------------------------------- */

func TestUnlinkFamily(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")
	fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")
	require.NoError(t, f.svc.ApproveFamily(ctx, elder.ID, fam.ID))

	req := linking.UnlinkRequest{ElderID: elder.ID, FamilyID: fam.ID, FamilyName: "Tom"}
	require.NoError(t, f.svc.UnlinkFamily(ctx, req))

	got, err := f.svc.Profile(ctx, fam.ID)
	require.NoError(t, err, "family record survives unlink")
	assert.False(t, got.IsApproved)
	assert.Nil(t, got.ElderID)

	ext, err := f.db.Elders().Get(ctx, elder.ID)
	require.NoError(t, err)
	assert.NotContains(t, ext.AssignedFamilyIDs, fam.ID)
	assert.True(t, f.db.HasIdentity(fam.ID), "credentials kept")

	// idempotent
	require.NoError(t, f.svc.UnlinkFamily(ctx, req))
	again, err := f.svc.Profile(ctx, fam.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ElderID, again.ElderID)
	assert.Equal(t, got.IsApproved, again.IsApproved)
	ext, err = f.db.Elders().Get(ctx, elder.ID)
	require.NoError(t, err)
	assert.NotContains(t, ext.AssignedFamilyIDs, fam.ID)
	f.assertConsistent(t, elder.ID, fam.ID)
}

func TestUnlinkFamily_PendingMember(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")
	fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

	require.NoError(t, f.svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: elder.ID, FamilyID: fam.ID}))

	pending, err := f.svc.PendingRequests(ctx, elder.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	got, err := f.svc.Profile(ctx, fam.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ElderID)
}

func TestUnlinkFamily_OtherElderUntouched(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD", "E5678-WXYZ"))
	ctx := context.Background()
	rose := f.registerElder(t, "Rose", "rose@example.com")
	ann := f.registerElder(t, "Ann", "ann@example.com")
	tom := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")
	require.NoError(t, f.svc.ApproveFamily(ctx, rose.ID, tom.ID))

	require.NoError(t, f.svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: ann.ID, FamilyID: tom.ID}))

	got, err := f.svc.Profile(ctx, tom.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)
	assert.True(t, got.LinkedTo(rose.ID))
}

func TestUnlinkFamily_NotFound(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")

	var nf *linking.NotFoundError
	err := f.svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: primitive.NewObjectID(), FamilyID: primitive.NewObjectID()})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "elder", nf.Kind)

	err = f.svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: elder.ID, FamilyID: primitive.NewObjectID()})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "family member", nf.Kind)
}

/* ---------------------------- relink and access ---------------------------- */

func TestRequestLink_AfterUnlink(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD", "E5678-WXYZ"))
	ctx := context.Background()
	rose := f.registerElder(t, "Rose", "rose@example.com")
	ann := f.registerElder(t, "Ann", "ann@example.com")
	tom := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

	_, err := f.svc.RequestLink(ctx, tom.ID, "E5678-WXYZ")
	assert.ErrorIs(t, err, linking.ErrAlreadyLinked)

	require.NoError(t, f.svc.ApproveFamily(ctx, rose.ID, tom.ID))
	require.NoError(t, f.svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: rose.ID, FamilyID: tom.ID}))

	pr, err := f.svc.RequestLink(ctx, tom.ID, "e5678-wxyz")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, pr.ElderID)

	got, err := f.svc.Profile(ctx, tom.ID)
	require.NoError(t, err)
	assert.False(t, got.IsApproved)
	assert.True(t, got.LinkedTo(ann.ID))
	f.assertConsistent(t, ann.ID, tom.ID)

	_, err = f.svc.RequestLink(ctx, primitive.NewObjectID(), "E5678-WXYZ")
	var nf *linking.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestLinkedElder(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")
	fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

	_, err := f.svc.LinkedElder(ctx, fam.ID)
	assert.ErrorIs(t, err, linking.ErrNotApproved, "pending family has no access")

	require.NoError(t, f.svc.ApproveFamily(ctx, elder.ID, fam.ID))
	got, err := f.svc.LinkedElder(ctx, fam.ID)
	require.NoError(t, err)
	assert.Equal(t, elder.ID, got.ID)

	require.NoError(t, f.svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: elder.ID, FamilyID: fam.ID}))
	_, err = f.svc.LinkedElder(ctx, fam.ID)
	assert.ErrorIs(t, err, linking.ErrNotApproved)

	var nf *linking.NotFoundError
	_, err = f.svc.LinkedElder(ctx, elder.ID)
	assert.ErrorAs(t, err, &nf, "an elder id is not a family member")
}

func TestTouch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")

	require.NoError(t, f.svc.Touch(ctx, elder.ID))
	got, err := f.svc.Profile(ctx, elder.ID)
	require.NoError(t, err)
	assert.False(t, got.LastActive.Before(elder.LastActive))

	var nf *linking.NotFoundError
	assert.ErrorAs(t, f.svc.Touch(ctx, primitive.NewObjectID()), &nf)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")

	got, err := f.svc.UpdateProfile(ctx, elder.ID, linking.ProfileUpdate{Name: " <i>Rose</i>  Marie ", Phone: " 555-0100 "})
	require.NoError(t, err)
	assert.Equal(t, "Rose Marie", got.Name)
	assert.Equal(t, "555-0100", got.Phone)
	assert.Equal(t, elder.ElderCode, got.ElderCode)
	assert.False(t, got.LastActive.Before(elder.LastActive))
	assert.False(t, got.UpdatedAt.Before(elder.UpdatedAt))

	var ve *linking.ValidationError
	_, err = f.svc.UpdateProfile(ctx, elder.ID, linking.ProfileUpdate{Name: "<script></script>"})
	require.ErrorAs(t, err, &ve, "a name that sanitizes to nothing is rejected")
	assert.Equal(t, "Name", ve.Field)

	var nf *linking.NotFoundError
	_, err = f.svc.UpdateProfile(ctx, primitive.NewObjectID(), linking.ProfileUpdate{Name: "Ghost"})
	assert.ErrorAs(t, err, &nf)

	f.db.FailOn("users.UpdateProfile", errors.New("timeout"))
	_, err = f.svc.UpdateProfile(ctx, elder.ID, linking.ProfileUpdate{Name: "Rose"})
	assert.EqualError(t, err, "failed to update profile: timeout")
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")

	var ve *linking.ValidationError
	err := f.svc.ChangePassword(ctx, elder.ID, linking.PasswordChange{CurrentPassword: "secret123", NewPassword: "newsecret", ConfirmPassword: "other123"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ConfirmPassword", ve.Field)

	var pc *linking.PasswordChangeError
	err = f.svc.ChangePassword(ctx, elder.ID, linking.PasswordChange{CurrentPassword: "wrong123", NewPassword: "newsecret", ConfirmPassword: "newsecret"})
	require.ErrorAs(t, err, &pc)
	assert.ErrorIs(t, err, identitystore.ErrWrongPassword)

	err = f.svc.ChangePassword(ctx, elder.ID, linking.PasswordChange{CurrentPassword: "secret123", NewPassword: "abc", ConfirmPassword: "abc"})
	assert.ErrorIs(t, err, identitystore.ErrWeakPassword)

	require.NoError(t, f.svc.ChangePassword(ctx, elder.ID, linking.PasswordChange{CurrentPassword: "secret123", NewPassword: "newsecret", ConfirmPassword: "newsecret"}))
	id, err := f.db.Identities().Authenticate(ctx, "rose@example.com", "newsecret")
	require.NoError(t, err)
	assert.Equal(t, elder.ID, id)

	var nf *linking.NotFoundError
	err = f.svc.ChangePassword(ctx, primitive.NewObjectID(), linking.PasswordChange{CurrentPassword: "secret123", NewPassword: "newsecret", ConfirmPassword: "newsecret"})
	assert.ErrorAs(t, err, &nf)

	f.db.FailOn("identities.ChangePassword", errors.New("timeout"))
	var pe *linking.PersistenceError
	err = f.svc.ChangePassword(ctx, elder.ID, linking.PasswordChange{CurrentPassword: "newsecret", NewPassword: "another1", ConfirmPassword: "another1"})
	assert.ErrorAs(t, err, &pe)
}

/* --------------------------------- queries -------------------------------- */

func TestPendingRequests_Order(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")

	var want []primitive.ObjectID
	for i := 0; i < 5; i++ {
		fam := f.registerFamily(t, fmt.Sprintf("Member %d", i), fmt.Sprintf("m%d@example.com", i), "E1234-ABCD")
		want = append(want, fam.ID)
	}

	pending, err := f.svc.PendingRequests(ctx, elder.ID)
	require.NoError(t, err)
	var got []primitive.ObjectID
	for _, p := range pending {
		got = append(got, p.FamilyID)
	}
	assert.Equal(t, want, got)
}

func TestOverview(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")

	ov, err := f.svc.Overview(ctx, elder.ID)
	require.NoError(t, err)
	assert.Equal(t, linking.ElderOverview{ElderCode: "E1234-ABCD"}, *ov)

	tom := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")
	f.registerFamily(t, "Ann", "ann@example.com", "E1234-ABCD")
	f.registerFamily(t, "Sue", "sue@example.com", "E1234-ABCD")
	require.NoError(t, f.svc.ApproveFamily(ctx, elder.ID, tom.ID))

	ov, err = f.svc.Overview(ctx, elder.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ov.PendingRequests)
	assert.Equal(t, 1, ov.FamilyMembers)

	var nf *linking.NotFoundError
	_, err = f.svc.Overview(ctx, tom.ID)
	assert.ErrorAs(t, err, &nf, "a family id has no elder extension")

	f.db.FailOn("pending.CountByElder", errors.New("timeout"))
	_, err = f.svc.Overview(ctx, elder.ID)
	var pe *linking.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "failed to fetch elder overview: timeout", err.Error())
}

func TestQueries_UnknownElder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var nf *linking.NotFoundError

	_, err := f.svc.PendingRequests(ctx, primitive.NewObjectID())
	assert.ErrorAs(t, err, &nf)
	_, err = f.svc.FamilyMembers(ctx, primitive.NewObjectID())
	assert.ErrorAs(t, err, &nf)
	_, err = f.svc.Profile(ctx, primitive.NewObjectID())
	assert.ErrorAs(t, err, &nf)
}

func TestQueries_StoreFailure(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	elder := f.registerElder(t, "Rose", "rose@example.com")
	f.db.FailOn("pending.ListByElder", errors.New("timeout"))

	_, err := f.svc.PendingRequests(context.Background(), elder.ID)
	var pe *linking.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "failed to fetch pending requests: timeout", err.Error())
}

func TestEndToEnd_RoseAndTom(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()

	rose := f.registerElder(t, "Rose", "rose@example.com")
	require.Equal(t, "E1234-ABCD", rose.ElderCode)

	tom := f.registerFamily(t, "Tom", "tom@example.com", rose.ElderCode)
	require.NoError(t, f.svc.ApproveFamily(ctx, rose.ID, tom.ID))

	members, err := f.svc.FamilyMembers(ctx, rose.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Tom", members[0].Name)
	assert.True(t, members[0].IsApproved)

	pending, err := f.svc.PendingRequests(ctx, rose.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

/* ------------------------------- concurrency ------------------------------ */

func TestConcurrentApprovals_Independent(t *testing.T) {
	f := newFixture(t, withCodes("E1234-ABCD"))
	ctx := context.Background()
	elder := f.registerElder(t, "Rose", "rose@example.com")

	const n = 20
	ids := make([]primitive.ObjectID, n)
	for i := range ids {
		ids[i] = f.registerFamily(t, fmt.Sprintf("Member %02d", i), fmt.Sprintf("m%d@example.com", i), "E1234-ABCD").ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id primitive.ObjectID) {
			defer wg.Done()
			errs[i] = f.svc.ApproveFamily(ctx, elder.ID, id)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "approve %d", i)
	}
	ext, err := f.db.Elders().Get(ctx, elder.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, ext.AssignedFamilyIDs)
	for _, id := range ids {
		f.assertConsistent(t, elder.ID, id)
	}
}

func TestConcurrentApproveReject_SameMember(t *testing.T) {
	for round := 0; round < 10; round++ {
		f := newFixture(t, withCodes("E1234-ABCD"))
		ctx := context.Background()
		elder := f.registerElder(t, "Rose", "rose@example.com")
		fam := f.registerFamily(t, "Tom", "tom@example.com", "E1234-ABCD")

		var wg sync.WaitGroup
		var approveErr, rejectErr error
		wg.Add(2)
		go func() { defer wg.Done(); approveErr = f.svc.ApproveFamily(ctx, elder.ID, fam.ID) }()
		go func() { defer wg.Done(); rejectErr = f.svc.RejectFamily(ctx, elder.ID, fam.ID) }()
		wg.Wait()

		assert.False(t, approveErr == nil && rejectErr == nil, "both operations cannot win")
		f.assertConsistent(t, elder.ID, fam.ID)
	}
}
