package models

import (
	"time"

	"github.com/google/uuid"
)

// JobInstance is the concrete execution of an accepted post. Its status
// mirrors the post's but trails it during assignment; the physical
// checkpoint timestamps live here.
type JobInstance struct {
	ID          uuid.UUID  `json:"id"`
	JobPostID   uuid.UUID  `json:"job_post_id"`
	Status      string     `json:"status"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Assignment sub-statuses.
const (
	AssignmentActive    = "active"
	AssignmentCompleted = "completed"
	AssignmentCancelled = "cancelled"
)

// Assignment binds a JobInstance to exactly one provider. At most one
// active assignment exists per instance, enforced by a partial unique index.
type Assignment struct {
	ID            uuid.UUID `json:"id"`
	JobInstanceID uuid.UUID `json:"job_instance_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GPSSample is a reported device location with its accuracy in meters.
type GPSSample struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AccuracyM float64 `json:"accuracy_m"`
}
