package model

import "time"

// Position is an immutable parking sample. Number is the optional parking
// slot and stays nil when the sample carries none.
type Position struct {
	ID        int64     `json:"-"`
	CarID     int64     `json:"-"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Number    *int64    `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}
