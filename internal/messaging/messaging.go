package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/backend/internal/models"
)

// Poster narrates lifecycle events in a job's chat. Delivery failure must
// never abort the business transition that triggered it, so callers treat
// PostSystemMessage as best-effort.
type Poster interface {
	PostSystemMessage(ctx context.Context, jobInstanceID uuid.UUID, text string)
}

// TimelinePoster appends system messages to the job timeline.
type TimelinePoster struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewTimelinePoster(pool *pgxpool.Pool, logger *slog.Logger) *TimelinePoster {
	return &TimelinePoster{pool: pool, logger: logger}
}

var _ Poster = (*TimelinePoster)(nil)

func (p *TimelinePoster) PostSystemMessage(ctx context.Context, jobInstanceID uuid.UUID, text string) {
	payload, _ := json.Marshal(map[string]string{"text": text})
	_, err := p.pool.Exec(ctx, `
		INSERT INTO job_events (id, job_instance_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), jobInstanceID, models.EventSystemMessage, payload)
	if err != nil {
		p.logger.Warn("system message post failed", "job_instance_id", jobInstanceID, "error", err)
	}
}

// NopPoster discards messages. Used in tests.
type NopPoster struct{}

func (NopPoster) PostSystemMessage(context.Context, uuid.UUID, string) {}
