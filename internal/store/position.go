package store

import (
	"database/sql"
	"fmt"

	"github.com/lukasschreiber/wimc/internal/model"
)

type PositionStore struct {
	db *sql.DB
}

func NewPositionStore(db *sql.DB) *PositionStore {
	return &PositionStore{db: db}
}

const positionCols = `id, car_id, x, y, number, created_at`

func scanPosition(scanner interface{ Scan(...any) error }) (*model.Position, error) {
	var p model.Position
	var number sql.NullInt64
	err := scanner.Scan(&p.ID, &p.CarID, &p.X, &p.Y, &number, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if number.Valid {
		p.Number = &number.Int64
	}
	return &p, nil
}

// Append records a new parking position for the car. Earlier positions are
// kept as history.
func (s *PositionStore) Append(carID int64, x, y float64, number *int64) (*model.Position, error) {
	result, err := s.db.Exec(
		`INSERT INTO positions (car_id, x, y, number) VALUES (?, ?, ?, ?)`,
		carID, x, y, number,
	)
	if err != nil {
		return nil, fmt.Errorf("insert position: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+positionCols+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// ListByCar returns the car's positions oldest first, so the last element is
// where the car currently stands.
func (s *PositionStore) ListByCar(carID int64) ([]model.Position, error) {
	rows, err := s.db.Query(`SELECT `+positionCols+` FROM positions WHERE car_id = ? ORDER BY id ASC`, carID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}
