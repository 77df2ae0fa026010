package testutil

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/eldercircle/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return r
}

// Fixtures inserts test records directly, bypassing the stores.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) insertUser(ctx context.Context, u models.User) models.User {
	f.t.Helper()
	now := time.Now().UTC()
	u.ID = primitive.NewObjectID()
	u.NameCI = text.Fold(u.Name)
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt, u.UpdatedAt, u.LastActive = now, now, now
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateElder inserts an elder user with code and an empty extension.
func (f *Fixtures) CreateElder(ctx context.Context, name, email, code string) models.User {
	f.t.Helper()
	u := f.insertUser(ctx, models.User{
		UserType:  models.UserTypeElder,
		Name:      name,
		Email:     email,
		Age:       80,
		ElderCode: code,
	})
	now := time.Now().UTC()
	ext := models.ElderExtension{ID: u.ID, AssignedFamilyIDs: []primitive.ObjectID{}, CreatedAt: now, UpdatedAt: now}
	if _, err := f.db.Collection("elders").InsertOne(ctx, ext); err != nil {
		f.t.Fatalf("failed to create elder extension: %v", err)
	}
	return u
}

// CreatePendingFamily inserts an unapproved family user linked to elderID
// plus its pending request.
func (f *Fixtures) CreatePendingFamily(ctx context.Context, name, email string, elderID primitive.ObjectID) models.User {
	f.t.Helper()
	eid := elderID
	u := f.insertUser(ctx, models.User{
		UserType: models.UserTypeFamily,
		Name:     name,
		Email:    email,
		Relation: models.RelationDaughter,
		ElderID:  &eid,
	})
	pr := models.PendingRequest{
		ID:          primitive.NewObjectID(),
		ElderID:     elderID,
		FamilyID:    u.ID,
		Name:        u.Name,
		Relation:    u.Relation,
		RequestedAt: time.Now().UTC(),
	}
	if _, err := f.db.Collection("pending_requests").InsertOne(ctx, pr); err != nil {
		f.t.Fatalf("failed to create pending request: %v", err)
	}
	return u
}

// CreateApprovedFamily inserts an approved family user assigned to elderID.
func (f *Fixtures) CreateApprovedFamily(ctx context.Context, name, email string, elderID primitive.ObjectID) models.User {
	f.t.Helper()
	eid := elderID
	u := f.insertUser(ctx, models.User{
		UserType:   models.UserTypeFamily,
		Name:       name,
		Email:      email,
		Relation:   models.RelationSon,
		ElderID:    &eid,
		IsApproved: true,
	})
	_, err := f.db.Collection("elders").UpdateByID(ctx, elderID,
		bson.M{"$addToSet": bson.M{"assigned_family_ids": u.ID}})
	if err != nil {
		f.t.Fatalf("failed to assign family member: %v", err)
	}
	return u
}
