package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-id/aegis/internal/shared"
)

// Repository loads credential data for authentication.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// PgRepository is the PostgreSQL implementation of Repository.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// FindByEmail fetches an account by email.
func (r *PgRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	var account Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, is_active FROM users WHERE email = $1`, email).
		Scan(&account.ID, &account.Email, &account.PasswordHash, &account.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrInvalidCredentials
		}
		return Account{}, err
	}
	return account, nil
}
