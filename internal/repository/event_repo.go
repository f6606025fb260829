package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

// EventRepo writes the append-only job timeline. Timeline rows are part of
// the business transaction, unlike the audit log.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Append(ctx context.Context, tx pgx.Tx, e *models.JobEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO job_events (id, job_instance_id, event_type, actor_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, e.ID, e.JobInstanceID, e.EventType, e.ActorID, e.Payload).Scan(&e.CreatedAt)
	return apperrors.MapDBError(err)
}

func (r *EventRepo) ListByInstance(ctx context.Context, jobInstanceID uuid.UUID) ([]*models.JobEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_instance_id, event_type, actor_id, payload, created_at
		FROM job_events WHERE job_instance_id = $1 ORDER BY created_at
	`, jobInstanceID)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	var list []*models.JobEvent
	for rows.Next() {
		var e models.JobEvent
		if err := rows.Scan(&e.ID, &e.JobInstanceID, &e.EventType, &e.ActorID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		list = append(list, &e)
	}
	return list, apperrors.MapDBError(rows.Err())
}
