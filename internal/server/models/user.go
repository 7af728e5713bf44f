package models

import "time"

// User is an account that can own, share and receive files.
type User struct {
	ID           int64
	UserName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
