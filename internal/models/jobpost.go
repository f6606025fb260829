package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job lifecycle states, shared by posts and instances. All of completed,
// cancelled and expired are terminal.
const (
	JobStatusDraft      = "draft"
	JobStatusPosted     = "posted"
	JobStatusAssigned   = "assigned"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
	JobStatusExpired    = "expired"
)

// jobTransitions is the exhaustive transition table. Self-transitions and
// anything absent here are rejected.
var jobTransitions = map[string][]string{
	JobStatusDraft:      {JobStatusPosted},
	JobStatusPosted:     {JobStatusAssigned, JobStatusCancelled, JobStatusExpired},
	JobStatusAssigned:   {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no transition leaves the status.
func IsTerminalStatus(status string) bool {
	return len(jobTransitions[status]) == 0
}

// Risk classifications.
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// JobPost is a requester-authored offer: scheduling window, location with a
// geofence radius, and price terms. Mutated only by the lifecycle
// controller; immutable once in a terminal status.
type JobPost struct {
	ID                  uuid.UUID       `json:"id"`
	RequesterID         uuid.UUID       `json:"requester_id"`
	Title               string          `json:"title"`
	Category            string          `json:"category"`
	Details             json.RawMessage `json:"details,omitempty"`
	Status              string          `json:"status"`
	ScheduledStart      time.Time       `json:"scheduled_start"`
	ScheduledEnd        time.Time       `json:"scheduled_end"`
	Address             string          `json:"address"`
	Latitude            float64         `json:"latitude"`
	Longitude           float64         `json:"longitude"`
	GeofenceRadiusM     int             `json:"geofence_radius_m"`
	HourlyRateCents     int64           `json:"hourly_rate_cents"`
	TotalHours          int             `json:"total_hours"`
	TotalAmountCents    int64           `json:"total_amount_cents"`
	PlatformFeePercent  int             `json:"platform_fee_percent"`
	PlatformFeeCents    int64           `json:"platform_fee_cents"`
	RiskLevel           string          `json:"risk_level"`
	RequiredTrustLevel  int             `json:"required_trust_level"`
	RequiredCerts       []string        `json:"required_certs,omitempty"`
	ReservedProviderID  *uuid.UUID      `json:"reserved_provider_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ComputeAmounts derives the total amount and platform fee from the price
// terms. Fees round down to whole minor units.
func (p *JobPost) ComputeAmounts() {
	p.TotalAmountCents = p.HourlyRateCents * int64(p.TotalHours)
	p.PlatformFeeCents = p.TotalAmountCents * int64(p.PlatformFeePercent) / 100
}

// EscrowTotalCents is the amount the requester funds: job total plus fee.
func (p *JobPost) EscrowTotalCents() int64 {
	return p.TotalAmountCents + p.PlatformFeeCents
}
