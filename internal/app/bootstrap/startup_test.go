package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/eldercircle/internal/domain/models"
	"github.com/dalemusser/eldercircle/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "elder_circle",
		SessionKey:        strings.Repeat("k", minSessionKeyLen),
		SessionName:       "eldercircle-session",
		SessionMaxAge:     time.Hour,
		CodeMaxAttempts:   10,
		AuditLogLink:      "all",
		AuditLogAuth:      "log",
		RegisterPerMinute: 20,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"valid", "prod", func(*AppConfig) {}, false},
		{"bad uri", "prod", func(c *AppConfig) { c.MongoURI = "postgres://nope" }, true},
		{"no database", "prod", func(c *AppConfig) { c.MongoDatabase = "" }, true},
		{"short key in prod", "prod", func(c *AppConfig) { c.SessionKey = "short" }, true},
		{"short key in dev", "dev", func(c *AppConfig) { c.SessionKey = "short" }, false},
		{"zero max age", "dev", func(c *AppConfig) { c.SessionMaxAge = 0 }, true},
		{"zero code attempts", "dev", func(c *AppConfig) { c.CodeMaxAttempts = 0 }, true},
		{"unknown audit mode", "dev", func(c *AppConfig) { c.AuditLogLink = "verbose" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAppConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{Env: tt.env}, cfg, testLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(ctx context.Context, _ *readpref.ReadPref) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetry(t *testing.T) {
	old := connectRetryDelay
	connectRetryDelay = time.Millisecond
	t.Cleanup(func() { connectRetryDelay = old })

	p := &flakyPinger{failures: 2}
	if err := pingWithRetry(t.Context(), p, 5, testLogger()); err != nil {
		t.Fatalf("pingWithRetry: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}

	p = &flakyPinger{failures: 10}
	err := pingWithRetry(t.Context(), p, 3, testLogger())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error %q should carry the last ping error", err)
	}
}

func TestEnsureSchema_CreatesUniqueIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}

	// Running twice must be harmless.
	for i := 0; i < 2; i++ {
		if err := EnsureSchema(ctx, &config.CoreConfig{Env: "dev"}, validAppConfig(), deps, testLogger()); err != nil {
			t.Fatalf("EnsureSchema run %d: %v", i+1, err)
		}
	}

	cur, err := db.Collection("users").Indexes().List(ctx)
	if err != nil {
		t.Fatalf("list indexes: %v", err)
	}
	var idx []bson.M
	if err := cur.All(ctx, &idx); err != nil {
		t.Fatalf("decode indexes: %v", err)
	}
	names := map[string]bool{}
	for _, ix := range idx {
		if n, ok := ix["name"].(string); ok {
			names[n] = true
		}
	}
	for _, want := range []string{"uniq_users_email", "uniq_users_elder_code"} {
		if !names[want] {
			t.Errorf("missing index %q (have %v)", want, names)
		}
	}
}

// client drives the built handler and carries one session cookie.
type client struct {
	t       *testing.T
	h       http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, target string, body any) *testutil.ResponseRecorder {
	c.t.Helper()
	req := testutil.NewJSONRequest(method, target, body)
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := testutil.NewRecorder()
	c.h.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rec
}

func TestBuildHandler_EndToEnd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	t.Cleanup(stopAll)

	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validAppConfig(),
		DBDeps{MongoClient: db.Client(), MongoDatabase: db}, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	anon := &client{t: t, h: h}
	anon.do(http.MethodGet, "/health", nil).AssertStatus(t, http.StatusOK)
	anon.do(http.MethodGet, "/no-such-thing", nil).AssertStatus(t, http.StatusNotFound)
	anon.do(http.MethodGet, "/me", nil).AssertStatus(t, http.StatusUnauthorized)

	// Elder signs up and reads their code.
	rec := anon.do(http.MethodPost, "/register/elder", map[string]any{
		"email": "rose@example.com", "password": "secret123", "name": "Rose", "age": 81,
	})
	rec.AssertStatus(t, http.StatusCreated)
	var elder models.User
	rec.DecodeEnvelope(t, &elder)

	eld := &client{t: t, h: h}
	eld.do(http.MethodPost, "/login", map[string]string{"email": "rose@example.com", "password": "secret123"}).
		AssertStatus(t, http.StatusOK)
	var code struct {
		ElderCode string `json:"elder_code"`
	}
	rec = eld.do(http.MethodGet, "/elder/code", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeEnvelope(t, &code)
	if code.ElderCode != elder.ElderCode || code.ElderCode == "" {
		t.Fatalf("elder code = %q, want %q", code.ElderCode, elder.ElderCode)
	}

	// Family signs up with the code and waits for approval.
	rec = anon.do(http.MethodPost, "/register/family", map[string]any{
		"email": "sam@example.com", "password": "secret123", "name": "Sam",
		"relation": models.RelationSon, "elder_code": strings.ToLower(code.ElderCode),
	})
	rec.AssertStatus(t, http.StatusCreated)
	var fam models.User
	rec.DecodeEnvelope(t, &fam)

	famc := &client{t: t, h: h}
	famc.do(http.MethodPost, "/login", map[string]string{"email": "sam@example.com", "password": "secret123"}).
		AssertStatus(t, http.StatusOK)
	famc.do(http.MethodGet, "/family/elder", nil).AssertStatus(t, http.StatusForbidden)
	famc.do(http.MethodGet, "/elder/requests", nil).AssertStatus(t, http.StatusForbidden)

	var pending []models.PendingRequest
	rec = eld.do(http.MethodGet, "/elder/requests", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeEnvelope(t, &pending)
	if len(pending) != 1 || pending[0].FamilyID != fam.ID {
		t.Fatalf("pending = %+v, want one request from %s", pending, fam.ID.Hex())
	}

	var overview struct {
		PendingRequests int64 `json:"pending_requests"`
		FamilyMembers   int   `json:"family_members"`
	}
	rec = eld.do(http.MethodGet, "/elder/overview", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeEnvelope(t, &overview)
	if overview.PendingRequests != 1 || overview.FamilyMembers != 0 {
		t.Errorf("overview before approval = %+v", overview)
	}

	eld.do(http.MethodPost, "/elder/requests/"+fam.ID.Hex()+"/approve", nil).AssertStatus(t, http.StatusOK)

	rec = eld.do(http.MethodGet, "/elder/overview", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeEnvelope(t, &overview)
	if overview.PendingRequests != 0 || overview.FamilyMembers != 1 {
		t.Errorf("overview after approval = %+v", overview)
	}

	var summary models.ElderSummary
	rec = famc.do(http.MethodGet, "/family/elder", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeEnvelope(t, &summary)
	if summary.ID != elder.ID || summary.Name != "Rose" {
		t.Errorf("summary = %+v", summary)
	}
	famc.do(http.MethodGet, "/elders/"+elder.ID.Hex(), nil).AssertStatus(t, http.StatusOK)

	// Family edits their own profile and password.
	rec = famc.do(http.MethodPost, "/me", map[string]string{"name": "Samuel", "phone": "555-0100"})
	rec.AssertStatus(t, http.StatusOK)
	var me models.User
	rec.DecodeEnvelope(t, &me)
	if me.Name != "Samuel" || me.Phone != "555-0100" || me.ElderID == nil || *me.ElderID != elder.ID {
		t.Errorf("updated profile = %+v", me)
	}
	famc.do(http.MethodPost, "/me/password", map[string]string{
		"current_password": "secret123", "new_password": "newsecret", "confirm_password": "newsecret",
	}).AssertStatus(t, http.StatusOK)
	relogin := &client{t: t, h: h}
	relogin.do(http.MethodPost, "/login", map[string]string{"email": "sam@example.com", "password": "secret123"}).
		AssertStatus(t, http.StatusUnauthorized)
	relogin.do(http.MethodPost, "/login", map[string]string{"email": "sam@example.com", "password": "newsecret"}).
		AssertStatus(t, http.StatusOK)

	// Unlink revokes access on the next request.
	eld.do(http.MethodPost, "/elder/family/"+fam.ID.Hex()+"/unlink", nil).AssertStatus(t, http.StatusOK)
	famc.do(http.MethodGet, "/family/elder", nil).AssertStatus(t, http.StatusForbidden)
	famc.do(http.MethodGet, "/elders/"+elder.ID.Hex(), nil).AssertStatus(t, http.StatusForbidden)

	// Audit events reached the database.
	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := db.Collection("audit_events").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if n == 0 {
		t.Error("expected audit events to be stored")
	}

	famc.do(http.MethodPost, "/heartbeat", nil).AssertStatus(t, http.StatusNoContent)
	famc.do(http.MethodPost, "/logout", nil).AssertStatus(t, http.StatusOK)
}

func TestShutdown_StopsLimitersAndDisconnects(t *testing.T) {
	stopAll()
	rl := &countingStopper{}
	registerStopper(rl)

	if err := Shutdown(context.Background(), &config.CoreConfig{}, AppConfig{}, DBDeps{}, testLogger()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if rl.n != 1 {
		t.Errorf("Stop called %d times, want 1", rl.n)
	}
	// A second shutdown has nothing left to stop.
	if err := Shutdown(context.Background(), &config.CoreConfig{}, AppConfig{}, DBDeps{}, testLogger()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if rl.n != 1 {
		t.Errorf("Stop called %d times after second shutdown, want 1", rl.n)
	}
}

type countingStopper struct{ n int }

func (c *countingStopper) Stop() { c.n++ }

