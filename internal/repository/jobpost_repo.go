package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

const jobPostColumns = `id, requester_id, title, category, details, status, scheduled_start, scheduled_end,
	address, latitude, longitude, geofence_radius_m, hourly_rate_cents, total_hours, total_amount_cents,
	platform_fee_percent, platform_fee_cents, risk_level, required_trust_level, required_certs,
	reserved_provider_id, created_at, updated_at`

type JobPostRepo struct {
	pool *pgxpool.Pool
}

func NewJobPostRepo(pool *pgxpool.Pool) *JobPostRepo {
	return &JobPostRepo{pool: pool}
}

func scanJobPost(row pgx.Row) (*models.JobPost, error) {
	var p models.JobPost
	err := row.Scan(&p.ID, &p.RequesterID, &p.Title, &p.Category, &p.Details, &p.Status,
		&p.ScheduledStart, &p.ScheduledEnd, &p.Address, &p.Latitude, &p.Longitude, &p.GeofenceRadiusM,
		&p.HourlyRateCents, &p.TotalHours, &p.TotalAmountCents, &p.PlatformFeePercent, &p.PlatformFeeCents,
		&p.RiskLevel, &p.RequiredTrustLevel, &p.RequiredCerts, &p.ReservedProviderID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &p, nil
}

func (r *JobPostRepo) Create(ctx context.Context, p *models.JobPost) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO job_posts
			(id, requester_id, title, category, details, status, scheduled_start, scheduled_end,
			 address, latitude, longitude, geofence_radius_m, hourly_rate_cents, total_hours,
			 total_amount_cents, platform_fee_percent, platform_fee_cents, risk_level,
			 required_trust_level, required_certs, reserved_provider_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING created_at, updated_at
	`, p.ID, p.RequesterID, p.Title, p.Category, p.Details, p.Status, p.ScheduledStart, p.ScheduledEnd,
		p.Address, p.Latitude, p.Longitude, p.GeofenceRadiusM, p.HourlyRateCents, p.TotalHours,
		p.TotalAmountCents, p.PlatformFeePercent, p.PlatformFeeCents, p.RiskLevel,
		p.RequiredTrustLevel, p.RequiredCerts, p.ReservedProviderID).Scan(&p.CreatedAt, &p.UpdatedAt)
	return apperrors.MapDBError(err)
}

func (r *JobPostRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.JobPost, error) {
	return scanJobPost(r.pool.QueryRow(ctx, `SELECT `+jobPostColumns+` FROM job_posts WHERE id = $1`, id))
}

// GetForUpdate locks the post row; transitions on one job are totally
// ordered by this lock.
func (r *JobPostRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.JobPost, error) {
	return scanJobPost(tx.QueryRow(ctx, `SELECT `+jobPostColumns+` FROM job_posts WHERE id = $1 FOR UPDATE`, id))
}

// UpdateStatus flips status with a compare-and-set on the previous value.
// Zero rows after a lock-and-revalidate means another writer won the race.
func (r *JobPostRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE job_posts SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("job post %s changed from %s concurrently", id, from)
	}
	return nil
}

func (r *JobPostRepo) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*models.JobPost, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobPostColumns+` FROM job_posts WHERE requester_id = $1 ORDER BY created_at DESC
	`, requesterID)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	var list []*models.JobPost
	for rows.Next() {
		p, err := scanJobPost(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, apperrors.MapDBError(rows.Err())
}

// CountByStatus returns the number of posts per status, for the admin
// overview.
func (r *JobPostRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM job_posts GROUP BY status`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		counts[status] = n
	}
	return counts, apperrors.MapDBError(rows.Err())
}

// ListStalePostedIDs returns posted jobs whose scheduled start has passed,
// for the expiry sweep.
func (r *JobPostRepo) ListStalePostedIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM job_posts WHERE status = 'posted' AND scheduled_start < $1 ORDER BY scheduled_start LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		ids = append(ids, id)
	}
	return ids, apperrors.MapDBError(rows.Err())
}
