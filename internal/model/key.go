package model

import "time"

type Key struct {
	ID        int64     `json:"-"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	CarID     int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
