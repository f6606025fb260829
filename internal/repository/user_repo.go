package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

const userColumns = `id, email, display_name, role, password_hash, trust_level, certifications, created_at, updated_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &u.TrustLevel,
		&u.Certifications, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, tx pgx.Tx, u *models.User) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, role, password_hash, trust_level, certifications)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.DisplayName, u.Role, u.PasswordHash, u.TrustLevel, u.Certifications).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	return apperrors.MapDBError(err)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// BumpTrustLevel raises the trust level, never lowering it. Called by the
// reputation hook on verification signals.
func (r *UserRepo) BumpTrustLevel(ctx context.Context, id uuid.UUID, level int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET trust_level = GREATEST(trust_level, $2), updated_at = now() WHERE id = $1
	`, id, level)
	return apperrors.MapDBError(err)
}
