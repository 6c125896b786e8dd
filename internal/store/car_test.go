package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lukasschreiber/wimc/internal/apperr"
	"github.com/lukasschreiber/wimc/internal/database"
)

func setupCarTestDB(t *testing.T) (*CarStore, *UserStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCarStore(db), NewUserStore(db), db
}

func createTestUser(t *testing.T, us *UserStore, uuid, email string) int64 {
	t.Helper()
	u, err := us.Create(uuid, "user", email, "hash", "000000", time.Now().Add(CodeTTL))
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u.ID
}

func TestCarCreateAndRights(t *testing.T) {
	cs, us, _ := setupCarTestDB(t)
	alice := createTestUser(t, us, "u-alice", "alice@example.com")
	bob := createTestUser(t, us, "u-bob", "bob@example.com")

	car, err := cs.Create("B-XY 123", "Family Van", alice)
	if err != nil {
		t.Fatalf("create car: %v", err)
	}
	if car.License != "B-XY 123" || car.Name != "Family Van" {
		t.Fatalf("car = %+v", car)
	}

	ok, err := cs.HasRights(alice, "B-XY 123")
	if err != nil {
		t.Fatalf("has rights: %v", err)
	}
	if !ok {
		t.Error("creator should have rights")
	}

	ok, err = cs.HasRights(bob, "B-XY 123")
	if err != nil {
		t.Fatalf("has rights: %v", err)
	}
	if ok {
		t.Error("stranger should not have rights")
	}

	cars, err := cs.ListForUser(alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cars) != 1 || cars[0].License != "B-XY 123" {
		t.Fatalf("list = %+v", cars)
	}

	cars, err = cs.ListForUser(bob)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cars) != 0 {
		t.Fatalf("stranger's list = %+v", cars)
	}
}

func TestCarUpdateName(t *testing.T) {
	cs, us, _ := setupCarTestDB(t)
	alice := createTestUser(t, us, "u-alice", "alice@example.com")

	if _, err := cs.Create("HH-AB 42", "Old Name", alice); err != nil {
		t.Fatalf("create car: %v", err)
	}

	car, err := cs.UpdateName("HH-AB 42", "New Name")
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if car.Name != "New Name" {
		t.Errorf("name = %q, want New Name", car.Name)
	}
}

func TestInvitationRoundTrip(t *testing.T) {
	cs, us, _ := setupCarTestDB(t)
	alice := createTestUser(t, us, "u-alice", "alice@example.com")
	bob := createTestUser(t, us, "u-bob", "bob@example.com")

	car, err := cs.Create("M-KL 7", "Roadster", alice)
	if err != nil {
		t.Fatalf("create car: %v", err)
	}

	code, err := cs.Invite(bob, car.ID)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	// Pending membership exists but confers no rights yet.
	m, err := cs.GetMembership(bob, car.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if m == nil || m.Active {
		t.Fatalf("membership = %+v, want pending", m)
	}
	ok, err := cs.HasRights(bob, "M-KL 7")
	if err != nil {
		t.Fatalf("has rights: %v", err)
	}
	if ok {
		t.Error("pending invitee should not have rights")
	}

	// Wrong code leaves the invitation untouched.
	err = cs.AcceptInvitation(bob, car.ID, "999999")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("wrong code: err = %v, want not found", err)
	}

	if err := cs.AcceptInvitation(bob, car.ID, code); err != nil {
		t.Fatalf("accept: %v", err)
	}

	ok, err = cs.HasRights(bob, "M-KL 7")
	if err != nil {
		t.Fatalf("has rights: %v", err)
	}
	if !ok {
		t.Error("invitee should have rights after accepting")
	}

	// The code is consumed.
	err = cs.AcceptInvitation(bob, car.ID, code)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("re-accept: err = %v, want not found", err)
	}
}

func TestInvitationReinviteReplacesCode(t *testing.T) {
	cs, us, _ := setupCarTestDB(t)
	alice := createTestUser(t, us, "u-alice", "alice@example.com")
	bob := createTestUser(t, us, "u-bob", "bob@example.com")

	car, err := cs.Create("K-JN 9", "Wagon", alice)
	if err != nil {
		t.Fatalf("create car: %v", err)
	}

	first, err := cs.Invite(bob, car.ID)
	if err != nil {
		t.Fatalf("first invite: %v", err)
	}
	second, err := cs.Invite(bob, car.ID)
	if err != nil {
		t.Fatalf("second invite: %v", err)
	}

	if first != second {
		err = cs.AcceptInvitation(bob, car.ID, first)
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("old code: err = %v, want not found", err)
		}
	}
	if err := cs.AcceptInvitation(bob, car.ID, second); err != nil {
		t.Fatalf("accept latest code: %v", err)
	}
}

func TestInvitationExpired(t *testing.T) {
	cs, us, db := setupCarTestDB(t)
	alice := createTestUser(t, us, "u-alice", "alice@example.com")
	bob := createTestUser(t, us, "u-bob", "bob@example.com")

	car, err := cs.Create("F-GH 3", "Coupe", alice)
	if err != nil {
		t.Fatalf("create car: %v", err)
	}

	code, err := cs.Invite(bob, car.ID)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	if _, err := db.Exec(`UPDATE invitations SET token_expires = ?`, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("expire invitation: %v", err)
	}

	err = cs.AcceptInvitation(bob, car.ID, code)
	if apperr.KindOf(err) != apperr.KindExpired {
		t.Fatalf("expired code: err = %v, want expired", err)
	}

	ok, err := cs.HasRights(bob, "F-GH 3")
	if err != nil {
		t.Fatalf("has rights: %v", err)
	}
	if ok {
		t.Error("expired invitation must not grant rights")
	}
}

func TestCarDeleteCascades(t *testing.T) {
	cs, us, db := setupCarTestDB(t)
	alice := createTestUser(t, us, "u-alice", "alice@example.com")
	bob := createTestUser(t, us, "u-bob", "bob@example.com")

	car, err := cs.Create("S-TU 5", "Hatchback", alice)
	if err != nil {
		t.Fatalf("create car: %v", err)
	}

	ks := NewKeyStore(db)
	if _, err := ks.Create(car.ID, "Spare"); err != nil {
		t.Fatalf("create key: %v", err)
	}
	ps := NewPositionStore(db)
	if _, err := ps.Append(car.ID, 48.1, 11.5, nil); err != nil {
		t.Fatalf("append position: %v", err)
	}
	if _, err := cs.Invite(bob, car.ID); err != nil {
		t.Fatalf("invite: %v", err)
	}

	if err := cs.Delete("S-TU 5"); err != nil {
		t.Fatalf("delete car: %v", err)
	}

	gone, err := cs.GetByLicense("S-TU 5")
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if gone != nil {
		t.Fatal("car should be gone")
	}

	for _, table := range []string{"user_cars", "invitations", "keys", "positions"} {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s still has %d rows after delete", table, count)
		}
	}
}

func TestCarDeleteUnknownIsNoop(t *testing.T) {
	cs, _, _ := setupCarTestDB(t)
	if err := cs.Delete("NO-SUCH 1"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}
}
