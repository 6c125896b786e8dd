package model

import "time"

type Car struct {
	ID        int64     `json:"id"`
	License   string    `json:"license"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ownership joins a user and a car. Active rows are confirmed owners;
// inactive rows are pending invitations awaiting acceptance.
type Ownership struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CarID     int64     `json:"car_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invitation holds the short-lived numeric token that lets a pending
// ownership row be activated.
type Invitation struct {
	ID           int64     `json:"id"`
	OwnershipID  int64     `json:"ownership_id"`
	Token        string    `json:"-"`
	TokenExpires time.Time `json:"token_expires"`
	CreatedAt    time.Time `json:"created_at"`
}
