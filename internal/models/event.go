package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job timeline event types. Timeline rows are written inside the business
// transaction; they are append-only and never locked.
const (
	EventGPSCheckpoint   = "gps_checkpoint"
	EventSystemMessage   = "system_message"
	EventDisputeTimeline = "dispute_timeline"
)

// JobEvent is one append-only entry on a job instance's timeline.
type JobEvent struct {
	ID            uuid.UUID       `json:"id"`
	JobInstanceID uuid.UUID       `json:"job_instance_id"`
	EventType     string          `json:"event_type"`
	ActorID       *uuid.UUID      `json:"actor_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditLog records a lifecycle transition for compliance: actor, from/to
// state and a business-specific metadata payload. Writing it is
// best-effort and never part of the business transaction.
type AuditLog struct {
	ID         uuid.UUID       `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Action     string          `json:"action"`
	FromState  string          `json:"from_state,omitempty"`
	ToState    string          `json:"to_state,omitempty"`
	ActorID    uuid.UUID       `json:"actor_id"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
