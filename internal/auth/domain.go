package auth

import "github.com/google/uuid"

// Account is the credential view of a user, the minimum needed to
// authenticate and produce a trusted principal id.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
}
