// Package memstore provides in-memory versions of the linking collaborators
// for tests. They return the same sentinel errors as the MongoDB stores.
//
// Tx serializes transactions and rolls users, elders and pending requests
// back when fn fails. Identities are never rolled back.
// Set Tx.NonAtomic to mimic a server without transaction support.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/eldercircle/internal/app/linking"
	elderstore "github.com/dalemusser/eldercircle/internal/app/store/elders"
	identitystore "github.com/dalemusser/eldercircle/internal/app/store/identities"
	pendingstore "github.com/dalemusser/eldercircle/internal/app/store/pendingrequests"
	userstore "github.com/dalemusser/eldercircle/internal/app/store/users"
	"github.com/dalemusser/eldercircle/internal/app/system/normalize"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type pairKey struct {
	elder, family primitive.ObjectID
}

type credential struct {
	email    string
	password string
}

type state struct {
	users      map[primitive.ObjectID]models.User
	elders     map[primitive.ObjectID]models.ElderExtension
	pending    map[pairKey]models.PendingRequest
	identities map[primitive.ObjectID]credential
}

func (s state) clone() state {
	out := state{
		users:      make(map[primitive.ObjectID]models.User, len(s.users)),
		elders:     make(map[primitive.ObjectID]models.ElderExtension, len(s.elders)),
		pending:    make(map[pairKey]models.PendingRequest, len(s.pending)),
		identities: make(map[primitive.ObjectID]credential, len(s.identities)),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.elders {
		v.AssignedFamilyIDs = append([]primitive.ObjectID(nil), v.AssignedFamilyIDs...)
		out.elders[k] = v
	}
	for k, v := range s.pending {
		out.pending[k] = v
	}
	for k, v := range s.identities {
		out.identities[k] = v
	}
	return out
}

// DB holds every collection.
type DB struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	st       state
	failures map[string]error
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		st: state{
			users:      map[primitive.ObjectID]models.User{},
			elders:     map[primitive.ObjectID]models.ElderExtension{},
			pending:    map[pairKey]models.PendingRequest{},
			identities: map[primitive.ObjectID]credential{},
		},
		failures: map[string]error{},
	}
}

// FailOn makes op (e.g. "users.Create", "pending.Add") return err until
// cleared with a nil err.
func (db *DB) FailOn(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.failures, op)
		return
	}
	db.failures[op] = err
}

// fail must be called with db.mu held.
func (db *DB) fail(op string) error {
	return db.failures[op]
}

func (db *DB) Users() *Users           { return &Users{db: db} }
func (db *DB) Elders() *Elders         { return &Elders{db: db} }
func (db *DB) Pending() *Pending       { return &Pending{db: db} }
func (db *DB) Identities() *Identities { return &Identities{db: db} }
func (db *DB) Tx() *Tx                 { return &Tx{db: db} }

// Deps wires every collaborator of a linking.Service to db.
func (db *DB) Deps() linking.Deps {
	return linking.Deps{
		Identities: db.Identities(),
		Users:      db.Users(),
		Elders:     db.Elders(),
		Pending:    db.Pending(),
		Tx:         db.Tx(),
	}
}

// Counts reports the size of each collection.
func (db *DB) Counts() (users, elders, pending, identities int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.st.users), len(db.st.elders), len(db.st.pending), len(db.st.identities)
}

// HasIdentity reports whether an identity exists for id.
func (db *DB) HasIdentity(id primitive.ObjectID) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.st.identities[id]
	return ok
}

/* ----------------------------- transactions ----------------------------- */

// Tx implements linking.Transactor.
type Tx struct {
	db *DB
	// NonAtomic skips rollback, like a standalone server.
	NonAtomic bool
}

func (t *Tx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	t.db.mu.Lock()
	snap := t.db.st.clone()
	t.db.mu.Unlock()

	if err := fn(ctx); err != nil {
		if !t.NonAtomic {
			// identities live outside the transaction
			t.db.mu.Lock()
			snap.identities = t.db.st.identities
			t.db.st = snap
			t.db.mu.Unlock()
		}
		return err
	}
	return nil
}

/* --------------------------------- users -------------------------------- */

// Users mirrors userstore.Store.
type Users struct{ db *DB }

func (u *Users) Create(_ context.Context, rec models.User) (models.User, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.Create"); err != nil {
		return models.User{}, err
	}
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	rec.Email = normalize.Email(rec.Email)
	rec.NameCI = strings.ToLower(rec.Name)
	for _, other := range db.st.users {
		if other.Email == rec.Email || other.ID == rec.ID {
			return models.User{}, userstore.ErrDuplicateEmail
		}
		if rec.ElderCode != "" && other.ElderCode == rec.ElderCode {
			return models.User{}, userstore.ErrDuplicateElderCode
		}
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt, rec.LastActive = now, now, now
	db.st.users[rec.ID] = rec
	return rec, nil
}

func (u *Users) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.GetByID"); err != nil {
		return nil, err
	}
	rec, ok := db.st.users[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &rec, nil
}

func (u *Users) GetElderByCode(_ context.Context, code string) (*models.User, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.GetElderByCode"); err != nil {
		return nil, err
	}
	code = normalize.ElderCode(code)
	for _, rec := range db.st.users {
		if rec.IsElder() && rec.ElderCode == code {
			out := rec
			return &out, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (u *Users) ElderCodeExists(_ context.Context, code string) (bool, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.ElderCodeExists"); err != nil {
		return false, err
	}
	code = normalize.ElderCode(code)
	for _, rec := range db.st.users {
		if rec.ElderCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (u *Users) SetApproved(_ context.Context, familyID, elderID primitive.ObjectID, approved bool) error {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.SetApproved"); err != nil {
		return err
	}
	rec, ok := db.st.users[familyID]
	if !ok || !rec.IsFamily() || !rec.LinkedTo(elderID) {
		return mongo.ErrNoDocuments
	}
	rec.IsApproved = approved
	rec.UpdatedAt = time.Now().UTC()
	db.st.users[familyID] = rec
	return nil
}

func (u *Users) LinkToElder(_ context.Context, familyID, elderID primitive.ObjectID) (bool, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.LinkToElder"); err != nil {
		return false, err
	}
	rec, ok := db.st.users[familyID]
	if !ok || !rec.IsFamily() || rec.ElderID != nil {
		return false, nil
	}
	id := elderID
	rec.ElderID = &id
	rec.IsApproved = false
	db.st.users[familyID] = rec
	return true, nil
}

func (u *Users) ClearElderLink(_ context.Context, familyID, elderID primitive.ObjectID) (bool, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.ClearElderLink"); err != nil {
		return false, err
	}
	rec, ok := db.st.users[familyID]
	if !ok || !rec.IsFamily() || !rec.LinkedTo(elderID) {
		return false, nil
	}
	rec.ElderID = nil
	rec.IsApproved = false
	db.st.users[familyID] = rec
	return true, nil
}

func (u *Users) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.Delete"); err != nil {
		return 0, err
	}
	if _, ok := db.st.users[id]; !ok {
		return 0, nil
	}
	delete(db.st.users, id)
	return 1, nil
}

func (u *Users) ListApprovedFamily(_ context.Context, elderID primitive.ObjectID) ([]models.User, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.ListApprovedFamily"); err != nil {
		return nil, err
	}
	out := []models.User{}
	for _, rec := range db.st.users {
		if rec.IsFamily() && rec.IsApproved && rec.LinkedTo(elderID) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (u *Users) Touch(_ context.Context, id primitive.ObjectID) error {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.Touch"); err != nil {
		return err
	}
	rec, ok := db.st.users[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	rec.LastActive = time.Now().UTC()
	db.st.users[id] = rec
	return nil
}

func (u *Users) UpdateProfile(_ context.Context, id primitive.ObjectID, name, phone string) (*models.User, error) {
	db := u.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("users.UpdateProfile"); err != nil {
		return nil, err
	}
	rec, ok := db.st.users[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	now := time.Now().UTC()
	rec.Name = normalize.Name(name)
	rec.NameCI = strings.ToLower(rec.Name)
	rec.Phone = normalize.Phone(phone)
	rec.UpdatedAt = now
	rec.LastActive = now
	db.st.users[id] = rec
	return &rec, nil
}

/* -------------------------------- elders -------------------------------- */

// Elders mirrors elderstore.Store.
type Elders struct{ db *DB }

func (e *Elders) Create(_ context.Context, elderID primitive.ObjectID) (models.ElderExtension, error) {
	db := e.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("elders.Create"); err != nil {
		return models.ElderExtension{}, err
	}
	if _, ok := db.st.elders[elderID]; ok {
		return models.ElderExtension{}, elderstore.ErrExists
	}
	now := time.Now().UTC()
	ext := models.ElderExtension{ID: elderID, AssignedFamilyIDs: []primitive.ObjectID{}, CreatedAt: now, UpdatedAt: now}
	db.st.elders[elderID] = ext
	return ext, nil
}

func (e *Elders) Get(_ context.Context, elderID primitive.ObjectID) (*models.ElderExtension, error) {
	db := e.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("elders.Get"); err != nil {
		return nil, err
	}
	ext, ok := db.st.elders[elderID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	ext.AssignedFamilyIDs = append([]primitive.ObjectID{}, ext.AssignedFamilyIDs...)
	return &ext, nil
}

func (e *Elders) AddAssigned(_ context.Context, elderID, familyID primitive.ObjectID) error {
	db := e.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("elders.AddAssigned"); err != nil {
		return err
	}
	ext, ok := db.st.elders[elderID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if ext.HasAssigned(familyID) {
		return nil
	}
	ids := make([]primitive.ObjectID, 0, len(ext.AssignedFamilyIDs)+1)
	ext.AssignedFamilyIDs = append(append(ids, ext.AssignedFamilyIDs...), familyID)
	ext.UpdatedAt = time.Now().UTC()
	db.st.elders[elderID] = ext
	return nil
}

func (e *Elders) RemoveAssigned(_ context.Context, elderID, familyID primitive.ObjectID) error {
	db := e.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("elders.RemoveAssigned"); err != nil {
		return err
	}
	ext, ok := db.st.elders[elderID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	ids := make([]primitive.ObjectID, 0, len(ext.AssignedFamilyIDs))
	for _, id := range ext.AssignedFamilyIDs {
		if id != familyID {
			ids = append(ids, id)
		}
	}
	ext.AssignedFamilyIDs = ids
	ext.UpdatedAt = time.Now().UTC()
	db.st.elders[elderID] = ext
	return nil
}

/* -------------------------------- pending ------------------------------- */

// Pending mirrors pendingstore.Store.
type Pending struct{ db *DB }

func (p *Pending) Add(_ context.Context, pr models.PendingRequest) (models.PendingRequest, error) {
	db := p.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("pending.Add"); err != nil {
		return models.PendingRequest{}, err
	}
	key := pairKey{pr.ElderID, pr.FamilyID}
	if _, ok := db.st.pending[key]; ok {
		return models.PendingRequest{}, pendingstore.ErrDuplicateRequest
	}
	pr.ID = primitive.NewObjectID()
	if pr.RequestedAt.IsZero() {
		pr.RequestedAt = time.Now().UTC()
	}
	db.st.pending[key] = pr
	return pr, nil
}

func (p *Pending) Remove(_ context.Context, elderID, familyID primitive.ObjectID) (bool, error) {
	db := p.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("pending.Remove"); err != nil {
		return false, err
	}
	key := pairKey{elderID, familyID}
	if _, ok := db.st.pending[key]; !ok {
		return false, nil
	}
	delete(db.st.pending, key)
	return true, nil
}

// Get loads one request for assertions.
func (p *Pending) Get(_ context.Context, elderID, familyID primitive.ObjectID) (*models.PendingRequest, error) {
	db := p.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("pending.Get"); err != nil {
		return nil, err
	}
	pr, ok := db.st.pending[pairKey{elderID, familyID}]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &pr, nil
}

func (p *Pending) ListByElder(_ context.Context, elderID primitive.ObjectID) ([]models.PendingRequest, error) {
	db := p.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("pending.ListByElder"); err != nil {
		return nil, err
	}
	out := []models.PendingRequest{}
	for k, pr := range db.st.pending {
		if k.elder == elderID {
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (p *Pending) CountByElder(_ context.Context, elderID primitive.ObjectID) (int64, error) {
	db := p.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("pending.CountByElder"); err != nil {
		return 0, err
	}
	var n int64
	for k := range db.st.pending {
		if k.elder == elderID {
			n++
		}
	}
	return n, nil
}

/* ------------------------------- identities ------------------------------ */

// Identities mirrors identitystore.Store. Passwords are kept in clear text.
type Identities struct{ db *DB }

func (i *Identities) Create(_ context.Context, email, password string) (primitive.ObjectID, error) {
	db := i.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("identities.Create"); err != nil {
		return primitive.NilObjectID, err
	}
	email = normalize.Email(email)
	if email == "" {
		return primitive.NilObjectID, identitystore.ErrInvalidEmail
	}
	if len(password) < identitystore.MinPasswordLength {
		return primitive.NilObjectID, identitystore.ErrWeakPassword
	}
	for _, c := range db.st.identities {
		if c.email == email {
			return primitive.NilObjectID, identitystore.ErrEmailInUse
		}
	}
	id := primitive.NewObjectID()
	db.st.identities[id] = credential{email: email, password: password}
	return id, nil
}

func (i *Identities) Authenticate(_ context.Context, email, password string) (primitive.ObjectID, error) {
	db := i.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("identities.Authenticate"); err != nil {
		return primitive.NilObjectID, err
	}
	email = normalize.Email(email)
	for id, c := range db.st.identities {
		if c.email == email && c.password == password {
			return id, nil
		}
	}
	return primitive.NilObjectID, identitystore.ErrInvalidCredentials
}

func (i *Identities) ChangePassword(_ context.Context, id primitive.ObjectID, current, next string) error {
	db := i.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("identities.ChangePassword"); err != nil {
		return err
	}
	if len(next) < identitystore.MinPasswordLength {
		return identitystore.ErrWeakPassword
	}
	c, ok := db.st.identities[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if c.password != current {
		return identitystore.ErrWrongPassword
	}
	if next == current {
		return identitystore.ErrPasswordReused
	}
	c.password = next
	db.st.identities[id] = c
	return nil
}

func (i *Identities) Delete(_ context.Context, id primitive.ObjectID) error {
	db := i.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail("identities.Delete"); err != nil {
		return err
	}
	delete(db.st.identities, id)
	return nil
}
