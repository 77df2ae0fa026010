package authz_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/eldercircle/internal/app/system/auth"
	"github.com/dalemusser/eldercircle/internal/app/system/authz"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserCtx_SignedIn(t *testing.T) {
	id := primitive.NewObjectID()
	req := auth.WithTestUser(httptest.NewRequest("GET", "/test", nil), &auth.SessionUser{
		ID:   id.Hex(),
		Name: "Rose",
		Role: "Elder",
	})

	role, name, userID, ok := authz.UserCtx(req)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if role != "elder" {
		t.Errorf("role: got %q, want %q", role, "elder")
	}
	if name != "Rose" {
		t.Errorf("name: got %q", name)
	}
	if userID != id {
		t.Errorf("userID: got %s, want %s", userID.Hex(), id.Hex())
	}
}

func TestUserCtx_NoUser(t *testing.T) {
	role, _, userID, ok := authz.UserCtx(httptest.NewRequest("GET", "/test", nil))
	if ok {
		t.Error("expected ok=false")
	}
	if role != "visitor" || userID != primitive.NilObjectID {
		t.Errorf("got role=%q id=%s", role, userID.Hex())
	}
}

func TestUserCtx_MalformedID(t *testing.T) {
	req := auth.WithTestUser(httptest.NewRequest("GET", "/test", nil), &auth.SessionUser{
		ID:   "not-an-object-id",
		Role: "elder",
	})
	if _, ok := authz.UserID(req); ok {
		t.Error("expected malformed id to fail closed")
	}
	if authz.IsElder(req) {
		t.Error("expected IsElder=false for malformed id")
	}
}

func TestRoleChecks(t *testing.T) {
	tests := []struct {
		role     string
		isElder  bool
		isFamily bool
	}{
		{"elder", true, false},
		{"family", false, true},
		{"FAMILY", false, true},
		{"admin", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			req := auth.WithTestUser(httptest.NewRequest("GET", "/test", nil), &auth.SessionUser{
				ID:   primitive.NewObjectID().Hex(),
				Role: tt.role,
			})
			if got := authz.IsElder(req); got != tt.isElder {
				t.Errorf("IsElder = %v, want %v", got, tt.isElder)
			}
			if got := authz.IsFamily(req); got != tt.isFamily {
				t.Errorf("IsFamily = %v, want %v", got, tt.isFamily)
			}
		})
	}
}
