package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lukasschreiber/wimc/internal/apperr"
	"github.com/lukasschreiber/wimc/internal/model"
)

type CarStore struct {
	db *sql.DB
}

func NewCarStore(db *sql.DB) *CarStore {
	return &CarStore{db: db}
}

const carCols = `id, license, name, created_at, updated_at`

func scanCar(scanner interface{ Scan(...any) error }) (*model.Car, error) {
	var c model.Car
	err := scanner.Scan(&c.ID, &c.License, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CarStore) GetByID(id int64) (*model.Car, error) {
	row := s.db.QueryRow(`SELECT `+carCols+` FROM cars WHERE id = ?`, id)
	c, err := scanCar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get car: %w", err)
	}
	return c, nil
}

func (s *CarStore) GetByLicense(license string) (*model.Car, error) {
	row := s.db.QueryRow(`SELECT `+carCols+` FROM cars WHERE license = ?`, license)
	c, err := scanCar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get car: %w", err)
	}
	return c, nil
}

// HasRights reports whether the user is a confirmed owner of the car with the
// given license plate. Pending invitations do not count.
func (s *CarStore) HasRights(userID int64, license string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM cars
		 INNER JOIN user_cars ON user_cars.car_id = cars.id
		 WHERE cars.license = ? AND user_cars.user_id = ? AND user_cars.active = 1`,
		license, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check rights: %w", err)
	}
	return count > 0, nil
}

// Create registers a car and makes ownerID its first confirmed owner, in one
// transaction.
func (s *CarStore) Create(license, name string, ownerID int64) (*model.Car, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`INSERT INTO cars (license, name) VALUES (?, ?)`, license, name)
	if err != nil {
		return nil, fmt.Errorf("insert car: %w", err)
	}
	carID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO user_cars (user_id, car_id, active) VALUES (?, ?, 1)`,
		ownerID, carID,
	); err != nil {
		return nil, fmt.Errorf("insert ownership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByLicense(license)
}

// ListForUser returns the cars the user is a confirmed owner of.
func (s *CarStore) ListForUser(userID int64) ([]model.Car, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.license, c.name, c.created_at, c.updated_at FROM cars c
		 INNER JOIN user_cars uc ON uc.car_id = c.id
		 WHERE uc.user_id = ? AND uc.active = 1
		 ORDER BY c.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	defer rows.Close()

	var cars []model.Car
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan car: %w", err)
		}
		cars = append(cars, *c)
	}
	return cars, rows.Err()
}

func (s *CarStore) UpdateName(license, name string) (*model.Car, error) {
	_, err := s.db.Exec(`UPDATE cars SET name = ? WHERE license = ?`, name, license)
	if err != nil {
		return nil, fmt.Errorf("update car: %w", err)
	}
	return s.GetByLicense(license)
}

// Delete removes the car and every dependent row (ownerships, invitations,
// keys, positions) in one transaction. Deleting an unknown license is a no-op.
func (s *CarStore) Delete(license string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var carID int64
	err = tx.QueryRow(`SELECT id FROM cars WHERE license = ?`, license).Scan(&carID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get car id: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM invitations WHERE user_car_id IN (SELECT id FROM user_cars WHERE car_id = ?)`,
		carID,
	); err != nil {
		return fmt.Errorf("delete invitations: %w", err)
	}
	for _, table := range []string{"user_cars", "keys", "positions"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE car_id = ?`, carID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM cars WHERE id = ?`, carID); err != nil {
		return fmt.Errorf("delete car: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetMembership returns the user's ownership row for the car (active or
// pending), or nil if none exists.
func (s *CarStore) GetMembership(userID, carID int64) (*model.Ownership, error) {
	var o model.Ownership
	err := s.db.QueryRow(
		`SELECT id, user_id, car_id, active, created_at, updated_at FROM user_cars WHERE user_id = ? AND car_id = ?`,
		userID, carID,
	).Scan(&o.ID, &o.UserID, &o.CarID, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &o, nil
}

// Invite records a pending ownership for the user (reusing an existing pending
// row if one is there) and issues a fresh invitation code, replacing any
// earlier one. Returns the code to be emailed.
func (s *CarStore) Invite(userID, carID int64) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var membershipID int64
	err = tx.QueryRow(
		`SELECT id FROM user_cars WHERE user_id = ? AND car_id = ?`,
		userID, carID,
	).Scan(&membershipID)
	if err == sql.ErrNoRows {
		result, err := tx.Exec(
			`INSERT INTO user_cars (user_id, car_id, active) VALUES (?, ?, 0)`,
			userID, carID,
		)
		if err != nil {
			return "", fmt.Errorf("insert pending ownership: %w", err)
		}
		membershipID, err = result.LastInsertId()
		if err != nil {
			return "", fmt.Errorf("last insert id: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("get membership: %w", err)
	}

	// Re-inviting replaces the old code.
	if _, err := tx.Exec(`DELETE FROM invitations WHERE user_car_id = ?`, membershipID); err != nil {
		return "", fmt.Errorf("delete old invitations: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO invitations (user_car_id, token, token_expires) VALUES (?, ?, ?)`,
		membershipID, code, time.Now().Add(CodeTTL),
	); err != nil {
		return "", fmt.Errorf("insert invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return code, nil
}

// AcceptInvitation confirms the user's pending ownership of the car if the
// code matches and has not expired, consuming the invitation.
func (s *CarStore) AcceptInvitation(userID, carID int64, code string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var membershipID int64
	err = tx.QueryRow(
		`SELECT id FROM user_cars WHERE user_id = ? AND car_id = ? AND active = 0`,
		userID, carID,
	).Scan(&membershipID)
	if err == sql.ErrNoRows {
		return apperr.NotFound("no pending invitation")
	}
	if err != nil {
		return fmt.Errorf("get pending membership: %w", err)
	}

	var token string
	var tokenExpires time.Time
	err = tx.QueryRow(
		`SELECT token, token_expires FROM invitations WHERE user_car_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		membershipID,
	).Scan(&token, &tokenExpires)
	if err == sql.ErrNoRows {
		return apperr.NotFound("no pending invitation")
	}
	if err != nil {
		return fmt.Errorf("get invitation: %w", err)
	}

	if token != code {
		return apperr.NotFound("no matching invitation")
	}
	if time.Now().After(tokenExpires) {
		return apperr.Expired("invitation code expired")
	}

	if _, err := tx.Exec(`UPDATE user_cars SET active = 1 WHERE id = ?`, membershipID); err != nil {
		return fmt.Errorf("confirm ownership: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM invitations WHERE user_car_id = ?`, membershipID); err != nil {
		return fmt.Errorf("consume invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
