package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/lukasschreiber/wimc/internal/model"
)

// CodeTTL is how long emailed verification, reset, and invitation codes stay
// valid.
const CodeTTL = 15 * time.Minute

// GenerateCode returns a 6-digit numeric code (100000 to 999999).
func GenerateCode() (string, error) {
	// Range: 100000 to 999999 (900000 values)
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, uuid, username, email, password, active, email_token, email_token_expires, reset_token, reset_token_expires, access_token, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var emailToken, resetToken, accessToken sql.NullString
	var emailTokenExpires, resetTokenExpires sql.NullTime

	err := scanner.Scan(
		&u.ID, &u.UUID, &u.Username, &u.Email, &u.Password, &u.Active,
		&emailToken, &emailTokenExpires, &resetToken, &resetTokenExpires,
		&accessToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if emailToken.Valid {
		u.EmailToken = &emailToken.String
	}
	if emailTokenExpires.Valid {
		u.EmailTokenExpires = &emailTokenExpires.Time
	}
	if resetToken.Valid {
		u.ResetToken = &resetToken.String
	}
	if resetTokenExpires.Valid {
		u.ResetTokenExpires = &resetTokenExpires.Time
	}
	if accessToken.Valid {
		u.AccessToken = &accessToken.String
	}
	return &u, nil
}

// Create inserts an inactive user carrying the emailed verification code.
// The account stays unusable until Activate clears the code.
func (s *UserStore) Create(uuid, username, email, passwordHash, code string, codeExpires time.Time) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (uuid, username, email, password, email_token, email_token_expires) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid, username, email, passwordHash, code, codeExpires,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUUID(uuid string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE uuid = ?`, uuid)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by uuid: %w", err)
	}
	return u, nil
}

// GetByAccessToken returns the user whose current session credential equals
// the given token, or nil if none holds it.
func (s *UserStore) GetByAccessToken(token string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE access_token = ?`, token)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by access token: %w", err)
	}
	return u, nil
}

// GetByEmailAndCode returns the user matching the email/verification-code
// pair, or nil. Expiry is left to the caller so it can answer Expired rather
// than NotFound.
func (s *UserStore) GetByEmailAndCode(email, code string) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userCols+` FROM users WHERE email = ? AND email_token = ?`,
		email, code,
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email and code: %w", err)
	}
	return u, nil
}

// Activate flips the account active and clears the verification code.
func (s *UserStore) Activate(id int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET active = 1, email_token = NULL, email_token_expires = NULL WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	return nil
}

// UpdateAccessToken persists the session credential issued at login.
func (s *UserStore) UpdateAccessToken(id int64, token string) error {
	_, err := s.db.Exec(`UPDATE users SET access_token = ? WHERE id = ?`, token, id)
	if err != nil {
		return fmt.Errorf("update access token: %w", err)
	}
	return nil
}

func (s *UserStore) SetResetCode(id int64, code string, expires time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET reset_token = ?, reset_token_expires = ? WHERE id = ?`,
		code, expires, id,
	)
	if err != nil {
		return fmt.Errorf("set reset code: %w", err)
	}
	return nil
}

func (s *UserStore) GetByResetToken(code string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE reset_token = ?`, code)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by reset token: %w", err)
	}
	return u, nil
}

// UpdatePassword stores the new hash and consumes the reset token.
func (s *UserStore) UpdatePassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(
		`UPDATE users SET password = ?, reset_token = NULL, reset_token_expires = NULL WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
