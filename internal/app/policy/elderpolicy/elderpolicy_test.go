package elderpolicy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/eldercircle/internal/app/policy/elderpolicy"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"github.com/dalemusser/eldercircle/internal/testutil/memstore"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCanReadElder(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	users := db.Users()

	mustCreate := func(u models.User) models.User {
		t.Helper()
		out, err := users.Create(ctx, u)
		if err != nil {
			t.Fatalf("create %s: %v", u.Name, err)
		}
		return out
	}

	rose := mustCreate(models.User{UserType: models.UserTypeElder, Name: "Rose", Email: "rose@example.com", ElderCode: "E1234-ABCD"})
	ann := mustCreate(models.User{UserType: models.UserTypeElder, Name: "Ann", Email: "ann@example.com", ElderCode: "E5678-WXYZ"})
	roseID := rose.ID
	approved := mustCreate(models.User{UserType: models.UserTypeFamily, Name: "Tom", Email: "tom@example.com", ElderID: &roseID})
	if err := users.SetApproved(ctx, approved.ID, roseID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	pending := mustCreate(models.User{UserType: models.UserTypeFamily, Name: "Pat", Email: "pat@example.com", ElderID: &roseID})
	unlinked := mustCreate(models.User{UserType: models.UserTypeFamily, Name: "Uma", Email: "uma@example.com"})

	p := elderpolicy.New(users)

	tests := []struct {
		name   string
		reader primitive.ObjectID
		elder  primitive.ObjectID
		want   bool
	}{
		{"elder reads self", rose.ID, rose.ID, true},
		{"elder reads other elder", ann.ID, rose.ID, false},
		{"approved family reads linked elder", approved.ID, rose.ID, true},
		{"approved family reads other elder", approved.ID, ann.ID, false},
		{"pending family", pending.ID, rose.ID, false},
		{"unlinked family", unlinked.ID, rose.ID, false},
		{"unknown reader", primitive.NewObjectID(), rose.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.CanReadElder(ctx, tt.reader, tt.elder)
			if err != nil {
				t.Fatalf("CanReadElder: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanReadElder = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanReadElder_StoreError(t *testing.T) {
	db := memstore.New()
	boom := errors.New("boom")
	db.FailOn("users.GetByID", boom)

	_, err := elderpolicy.New(db.Users()).CanReadElder(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	if !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
}
