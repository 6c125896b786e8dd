package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lukasschreiber/wimc/internal/model"
)

type KeyStore struct {
	db *sql.DB
}

func NewKeyStore(db *sql.DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyCols = `id, uuid, name, car_id, created_at, updated_at`

func scanKey(scanner interface{ Scan(...any) error }) (*model.Key, error) {
	var k model.Key
	err := scanner.Scan(&k.ID, &k.UUID, &k.Name, &k.CarID, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Create registers a key for the car under a fresh public identifier.
func (s *KeyStore) Create(carID int64, name string) (*model.Key, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO keys (uuid, name, car_id) VALUES (?, ?, ?)`,
		id, name, carID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert key: %w", err)
	}
	return s.GetByUUID(id)
}

func (s *KeyStore) GetByUUID(id string) (*model.Key, error) {
	row := s.db.QueryRow(`SELECT `+keyCols+` FROM keys WHERE uuid = ?`, id)
	k, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	return k, nil
}

func (s *KeyStore) UpdateName(id, name string) (*model.Key, error) {
	_, err := s.db.Exec(`UPDATE keys SET name = ? WHERE uuid = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update key: %w", err)
	}
	return s.GetByUUID(id)
}

// Delete removes the key. Deleting an unknown identifier is a no-op.
func (s *KeyStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM keys WHERE uuid = ?`, id)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

func (s *KeyStore) ListByCar(carID int64) ([]model.Key, error) {
	rows, err := s.db.Query(`SELECT `+keyCols+` FROM keys WHERE car_id = ? ORDER BY id ASC`, carID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []model.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}
