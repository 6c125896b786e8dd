package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukasschreiber/wimc/internal/auth"
	"github.com/lukasschreiber/wimc/internal/database"
	"github.com/lukasschreiber/wimc/internal/store"
	"github.com/lukasschreiber/wimc/internal/token"
)

var testSecret = []byte("test-secret")

func setupAuthTest(t *testing.T) (*store.UserStore, http.Handler, *auth.Identity) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := store.NewUserStore(db)

	var got auth.Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		got = id
		w.WriteHeader(http.StatusOK)
	})

	return us, RequireAuth(us, testSecret)(inner), &got
}

func loginTestUser(t *testing.T, us *store.UserStore, uuid, email string) string {
	t.Helper()
	u, err := us.Create(uuid, "user", email, "hash", "000000", time.Now().Add(store.CodeTTL))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := us.Activate(u.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	tok, err := token.Sign(uuid, email, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if err := us.UpdateAccessToken(u.ID, tok); err != nil {
		t.Fatalf("store token: %v", err)
	}
	return tok
}

func TestRequireAuthMissingHeader(t *testing.T) {
	_, handler, _ := setupAuthTest(t)

	req := httptest.NewRequest("GET", "/cars", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthUnknownToken(t *testing.T) {
	_, handler, _ := setupAuthTest(t)

	tok, err := token.Sign("some-uuid", "x@example.com", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Valid signature, but nobody holds this credential.
	req := httptest.NewRequest("GET", "/cars", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	us, handler, got := setupAuthTest(t)
	tok := loginTestUser(t, us, "u-alice", "alice@example.com")

	req := httptest.NewRequest("GET", "/cars", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if got.UUID != "u-alice" {
		t.Errorf("identity uuid = %q, want u-alice", got.UUID)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("identity email = %q", got.Email)
	}
}

func TestRequireAuthExpiredToken(t *testing.T) {
	us, handler, _ := setupAuthTest(t)

	u, err := us.Create("u-bob", "bob", "bob@example.com", "hash", "000000", time.Now().Add(store.CodeTTL))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	tok, err := token.Sign("u-bob", "bob@example.com", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := us.UpdateAccessToken(u.ID, tok); err != nil {
		t.Fatalf("store token: %v", err)
	}

	req := httptest.NewRequest("GET", "/cars", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRequireAuthSubjectMismatch(t *testing.T) {
	us, handler, _ := setupAuthTest(t)

	u, err := us.Create("u-carol", "carol", "carol@example.com", "hash", "000000", time.Now().Add(store.CodeTTL))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	// A token signed for somebody else ends up stored on carol's row.
	tok, err := token.Sign("u-other", "other@example.com", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := us.UpdateAccessToken(u.ID, tok); err != nil {
		t.Fatalf("store token: %v", err)
	}

	req := httptest.NewRequest("GET", "/cars", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
