package users

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account that can authenticate and hold roles.
type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
