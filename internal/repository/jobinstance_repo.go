package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

const jobInstanceColumns = `id, job_post_id, status, assigned_at, started_at, completed_at, cancelled_at, created_at, updated_at`

type JobInstanceRepo struct {
	pool *pgxpool.Pool
}

func NewJobInstanceRepo(pool *pgxpool.Pool) *JobInstanceRepo {
	return &JobInstanceRepo{pool: pool}
}

func scanJobInstance(row pgx.Row) (*models.JobInstance, error) {
	var ji models.JobInstance
	err := row.Scan(&ji.ID, &ji.JobPostID, &ji.Status, &ji.AssignedAt, &ji.StartedAt,
		&ji.CompletedAt, &ji.CancelledAt, &ji.CreatedAt, &ji.UpdatedAt)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &ji, nil
}

func (r *JobInstanceRepo) Create(ctx context.Context, tx pgx.Tx, ji *models.JobInstance) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO job_instances (id, job_post_id, status, assigned_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, ji.ID, ji.JobPostID, ji.Status, ji.AssignedAt).Scan(&ji.CreatedAt, &ji.UpdatedAt)
	return apperrors.MapDBError(err)
}

func (r *JobInstanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.JobInstance, error) {
	return scanJobInstance(r.pool.QueryRow(ctx, `SELECT `+jobInstanceColumns+` FROM job_instances WHERE id = $1`, id))
}

func (r *JobInstanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.JobInstance, error) {
	return scanJobInstance(tx.QueryRow(ctx, `SELECT `+jobInstanceColumns+` FROM job_instances WHERE id = $1 FOR UPDATE`, id))
}

// GetLiveByPostForUpdate locks the one non-terminal instance of a post, if any.
func (r *JobInstanceRepo) GetLiveByPostForUpdate(ctx context.Context, tx pgx.Tx, jobPostID uuid.UUID) (*models.JobInstance, error) {
	return scanJobInstance(tx.QueryRow(ctx, `
		SELECT `+jobInstanceColumns+` FROM job_instances
		WHERE job_post_id = $1 AND status IN ('assigned', 'in_progress')
		FOR UPDATE
	`, jobPostID))
}

// GetLatestByPost returns the most recent instance of a post regardless of
// status.
func (r *JobInstanceRepo) GetLatestByPost(ctx context.Context, jobPostID uuid.UUID) (*models.JobInstance, error) {
	return scanJobInstance(r.pool.QueryRow(ctx, `
		SELECT `+jobInstanceColumns+` FROM job_instances
		WHERE job_post_id = $1 ORDER BY created_at DESC LIMIT 1
	`, jobPostID))
}

// UpdateStatus flips status with a compare-and-set and stamps the matching
// checkpoint timestamp column for the destination state.
func (r *JobInstanceRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string, at time.Time) error {
	var stampCol string
	switch to {
	case models.JobStatusInProgress:
		stampCol = "started_at"
	case models.JobStatusCompleted:
		stampCol = "completed_at"
	case models.JobStatusCancelled:
		stampCol = "cancelled_at"
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	if stampCol == "" {
		tag, err = tx.Exec(ctx, `
			UPDATE job_instances SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
		`, id, from, to)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE job_instances SET status = $3, `+stampCol+` = $4, updated_at = now() WHERE id = $1 AND status = $2
		`, id, from, to, at)
	}
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("job instance %s changed from %s concurrently", id, from)
	}
	return nil
}

// --- assignments ---

func (r *JobInstanceRepo) CreateAssignment(ctx context.Context, tx pgx.Tx, a *models.Assignment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO assignments (id, job_instance_id, provider_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, a.ID, a.JobInstanceID, a.ProviderID, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	return apperrors.MapDBError(err)
}

// GetActiveAssignment returns the single active assignment of an instance.
func (r *JobInstanceRepo) GetActiveAssignment(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := tx.QueryRow(ctx, `
		SELECT id, job_instance_id, provider_id, status, created_at, updated_at
		FROM assignments WHERE job_instance_id = $1 AND status = 'active'
	`, jobInstanceID).Scan(&a.ID, &a.JobInstanceID, &a.ProviderID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &a, nil
}

// GetLatestAssignment returns the most recent assignment of an instance
// regardless of sub-status. Dispute settlement derives the payee from it
// after the assignment has already completed.
func (r *JobInstanceRepo) GetLatestAssignment(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := tx.QueryRow(ctx, `
		SELECT id, job_instance_id, provider_id, status, created_at, updated_at
		FROM assignments WHERE job_instance_id = $1 ORDER BY created_at DESC LIMIT 1
	`, jobInstanceID).Scan(&a.ID, &a.JobInstanceID, &a.ProviderID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &a, nil
}

func (r *JobInstanceRepo) UpdateAssignmentStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE assignments SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("assignment %s changed from %s concurrently", id, from)
	}
	return nil
}

// HasScheduleOverlap reports whether the provider already has an active
// assignment whose post window overlaps [start, end).
func (r *JobInstanceRepo) HasScheduleOverlap(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, start, end time.Time) (bool, error) {
	var overlap bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM assignments a
			JOIN job_instances ji ON ji.id = a.job_instance_id
			JOIN job_posts jp ON jp.id = ji.job_post_id
			WHERE a.provider_id = $1
			  AND a.status = 'active'
			  AND ji.status IN ('assigned', 'in_progress')
			  AND jp.scheduled_start < $3
			  AND jp.scheduled_end > $2
		)
	`, providerID, start, end).Scan(&overlap)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return overlap, nil
}
