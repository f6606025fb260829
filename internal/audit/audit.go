package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/backend/internal/models"
)

// Recorder is the compliance sink every transition reports to. Record is
// fire-and-forget: implementations must never return an error the caller
// would have to act on, and callers never let an audit failure roll back a
// committed transition.
type Recorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// PGRecorder writes audit rows on the pool, outside any business
// transaction, and logs write failures instead of propagating them.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGRecorder(pool *pgxpool.Pool, logger *slog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger}
}

var _ Recorder = (*PGRecorder)(nil)

func (r *PGRecorder) Record(ctx context.Context, entry *models.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, from_state, to_state, actor_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.EntityType, entry.EntityID, entry.Action, entry.FromState, entry.ToState, entry.ActorID, entry.Metadata)
	if err != nil {
		r.logger.Error("audit write failed",
			"entity_type", entry.EntityType, "entity_id", entry.EntityID,
			"action", entry.Action, "error", err)
	}
}

// Entry builds an audit entry with JSON-encoded metadata. A metadata value
// that fails to encode is dropped, not fatal.
func Entry(entityType string, entityID uuid.UUID, action, from, to string, actorID uuid.UUID, metadata any) *models.AuditLog {
	e := &models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		FromState:  from,
		ToState:    to,
		ActorID:    actorID,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			e.Metadata = raw
		}
	}
	return e
}

// NopRecorder discards entries. Used in tests.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.AuditLog) {}
