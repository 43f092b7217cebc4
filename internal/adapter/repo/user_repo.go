package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adforge/internal/domain"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

// UpsertByUID inserts or refreshes a user profile. The credit balance is only
// seeded on first insert; later sign-ins never touch it.
func (r *UserRepositoryPG) UpsertByUID(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
INSERT INTO users (uid, email, name, picture, credits)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (uid) DO UPDATE
SET email = EXCLUDED.email,
    name = EXCLUDED.name,
    picture = EXCLUDED.picture,
    updated_at = NOW()
RETURNING uid, email, name, picture, credits, created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query, user.UID, user.Email, user.Name, user.Picture, user.Credits)
	return scanUser(row)
}

// GetByUID fetches a user by its identity-provider subject.
func (r *UserRepositoryPG) GetByUID(ctx context.Context, uid string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT uid, email, name, picture, credits, created_at, updated_at FROM users WHERE uid = $1`, uid)
	return scanUser(row)
}

// GetByEmail fetches a user by email, the account key the pipeline trusts.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT uid, email, name, picture, credits, created_at, updated_at FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// Debit atomically decrements the balance, guarding against concurrent
// overdraw: the update only applies while the live balance still covers the
// amount, and the remaining credits are returned from the same statement.
func (r *UserRepositoryPG) Debit(ctx context.Context, email string, amount int) (int, error) {
	query := `
UPDATE users
SET credits = credits - $2,
    updated_at = NOW()
WHERE email = $1 AND credits >= $2
RETURNING credits;
`
	var remaining int
	if err := r.pool.QueryRow(ctx, query, email, amount).Scan(&remaining); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
		// Distinguish an unknown account from an underfunded one.
		if _, lookupErr := r.GetByEmail(ctx, email); lookupErr != nil {
			return 0, lookupErr
		}
		return 0, domain.ErrInsufficientCredits
	}
	return remaining, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.UID, &u.Email, &u.Name, &u.Picture, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
