package model

import "time"

type User struct {
	ID                int64      `json:"id"`
	UUID              string     `json:"uuid"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	Password          string     `json:"-"`
	Active            bool       `json:"active"`
	EmailToken        *string    `json:"-"`
	EmailTokenExpires *time.Time `json:"-"`
	ResetToken        *string    `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	AccessToken       *string    `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
