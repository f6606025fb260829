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

const disputeColumns = `id, job_instance_id, opened_by_id, arbitrator_id, status, reason, resolution_note,
	refund_cents, payout_cents, idempotency_key, created_at, resolved_at`

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.JobInstanceID, &d.OpenedByID, &d.ArbitratorID, &d.Status, &d.Reason,
		&d.ResolutionNote, &d.RefundCents, &d.PayoutCents, &d.IdempotencyKey, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &d, nil
}

func (r *DisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO disputes (id, job_instance_id, opened_by_id, status, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, d.ID, d.JobInstanceID, d.OpenedByID, d.Status, d.Reason).Scan(&d.CreatedAt)
	return apperrors.MapDBError(err)
}

func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

// CountByStatus returns the number of disputes per status, for the admin
// overview.
func (r *DisputeRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM disputes GROUP BY status`)
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

// GetForUpdate locks the dispute row for the settlement transaction.
func (r *DisputeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
}

// AssignArbitrator sets the arbitrator if none is assigned yet.
func (r *DisputeRepo) AssignArbitrator(ctx context.Context, tx pgx.Tx, id, arbitratorID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE disputes SET arbitrator_id = $2 WHERE id = $1 AND arbitrator_id IS NULL
	`, id, arbitratorID)
	return apperrors.MapDBError(err)
}

// RecordSettlement persists the settlement outcome and flips the dispute to
// its terminal status in one guarded write.
func (r *DisputeRepo) RecordSettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, note string, refund, payout int64, idempotencyKey string, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = $2, resolution_note = $3, refund_cents = $4, payout_cents = $5,
			idempotency_key = $6, resolved_at = $7
		WHERE id = $1 AND status IN ('open', 'in_review')
	`, id, status, note, refund, payout, idempotencyKey, at)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("dispute %s settled concurrently", id)
	}
	return nil
}

// UpdateStatus flips dispute status with a compare-and-set.
func (r *DisputeRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ConcurrentModification("dispute %s changed from %s concurrently", id, from)
	}
	return nil
}
