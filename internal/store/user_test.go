package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lukasschreiber/wimc/internal/database"
)

func setupUserTestDB(t *testing.T) (*UserStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db), db
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
	}
}

func TestUserCreateAndLookup(t *testing.T) {
	us, _ := setupUserTestDB(t)

	expires := time.Now().Add(CodeTTL)
	user, err := us.Create("uuid-1", "alice", "alice@example.com", "hash", "123456", expires)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Active {
		t.Error("new user should be inactive")
	}
	if user.EmailToken == nil || *user.EmailToken != "123456" {
		t.Errorf("email token = %v, want 123456", user.EmailToken)
	}

	byEmail, err := us.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail == nil || byEmail.ID != user.ID {
		t.Fatalf("get by email returned %+v", byEmail)
	}

	byUUID, err := us.GetByUUID("uuid-1")
	if err != nil {
		t.Fatalf("get by uuid: %v", err)
	}
	if byUUID == nil || byUUID.ID != user.ID {
		t.Fatalf("get by uuid returned %+v", byUUID)
	}

	missing, err := us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown email, got %+v", missing)
	}
}

func TestUserActivation(t *testing.T) {
	us, _ := setupUserTestDB(t)

	user, err := us.Create("uuid-2", "bob", "bob@example.com", "hash", "654321", time.Now().Add(CodeTTL))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	wrong, err := us.GetByEmailAndCode("bob@example.com", "000000")
	if err != nil {
		t.Fatalf("get by wrong code: %v", err)
	}
	if wrong != nil {
		t.Fatal("wrong code should not match")
	}

	match, err := us.GetByEmailAndCode("bob@example.com", "654321")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if match == nil {
		t.Fatal("expected match for correct code")
	}

	if err := us.Activate(user.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	activated, err := us.GetByID(user.ID)
	if err != nil {
		t.Fatalf("get activated: %v", err)
	}
	if !activated.Active {
		t.Error("user should be active")
	}
	if activated.EmailToken != nil {
		t.Error("email token should be cleared after activation")
	}
}

func TestUserAccessToken(t *testing.T) {
	us, _ := setupUserTestDB(t)

	user, err := us.Create("uuid-3", "carol", "carol@example.com", "hash", "111111", time.Now().Add(CodeTTL))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := us.UpdateAccessToken(user.ID, "session-token"); err != nil {
		t.Fatalf("update access token: %v", err)
	}

	got, err := us.GetByAccessToken("session-token")
	if err != nil {
		t.Fatalf("get by access token: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("get by access token returned %+v", got)
	}

	// A second login replaces the token; the old one stops matching.
	if err := us.UpdateAccessToken(user.ID, "newer-token"); err != nil {
		t.Fatalf("update access token: %v", err)
	}
	stale, err := us.GetByAccessToken("session-token")
	if err != nil {
		t.Fatalf("get by stale token: %v", err)
	}
	if stale != nil {
		t.Fatal("stale token should no longer match")
	}
}

func TestUserPasswordReset(t *testing.T) {
	us, _ := setupUserTestDB(t)

	user, err := us.Create("uuid-4", "dave", "dave@example.com", "oldhash", "222222", time.Now().Add(CodeTTL))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := us.SetResetCode(user.ID, "333333", time.Now().Add(CodeTTL)); err != nil {
		t.Fatalf("set reset code: %v", err)
	}

	got, err := us.GetByResetToken("333333")
	if err != nil {
		t.Fatalf("get by reset token: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("get by reset token returned %+v", got)
	}

	if err := us.UpdatePassword(user.ID, "newhash"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	updated, err := us.GetByID(user.ID)
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if updated.Password != "newhash" {
		t.Errorf("password = %q, want newhash", updated.Password)
	}
	if updated.ResetToken != nil {
		t.Error("reset token should be consumed")
	}

	gone, err := us.GetByResetToken("333333")
	if err != nil {
		t.Fatalf("get consumed token: %v", err)
	}
	if gone != nil {
		t.Fatal("consumed reset token should not match")
	}
}
