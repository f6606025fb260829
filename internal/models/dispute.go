package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute statuses. Resolved and rejected are terminal.
const (
	DisputeStatusOpen     = "open"
	DisputeStatusInReview = "in_review"
	DisputeStatusResolved = "resolved"
	DisputeStatusRejected = "rejected"
)

// Dispute is opened against a job instance and settled by an arbitrator
// splitting the escrowed funds between refund and payout. The settlement
// amounts and idempotency key are recorded at settlement time so a replay
// returns the prior result.
type Dispute struct {
	ID             uuid.UUID  `json:"id"`
	JobInstanceID  uuid.UUID  `json:"job_instance_id"`
	OpenedByID     uuid.UUID  `json:"opened_by_id"`
	ArbitratorID   *uuid.UUID `json:"arbitrator_id,omitempty"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	RefundCents    *int64     `json:"refund_cents,omitempty"`
	PayoutCents    *int64     `json:"payout_cents,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Settleable reports whether settlement actions are still legal.
func (d *Dispute) Settleable() bool {
	return d.Status == DisputeStatusOpen || d.Status == DisputeStatusInReview
}
