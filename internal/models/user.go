package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleCitizen = "citizen"
	RoleAdmin   = "admin"
)

// User is a registered reporter or administrator.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
