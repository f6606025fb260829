package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleRequester = "requester"
	RoleProvider  = "provider"
	RoleAdmin     = "admin"
)

// Trust levels, computed by the external reputation collaborator. The core
// only reads them as preconditions.
const (
	TrustLevelNone     = 0
	TrustLevelBasic    = 1
	TrustLevelVerified = 2
	TrustLevelTrusted  = 3
)

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	PasswordHash   string    `json:"-"`
	TrustLevel     int       `json:"trust_level"`
	Certifications []string  `json:"certifications,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasCertifications reports whether the user holds every required certification.
func (u *User) HasCertifications(required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := make(map[string]bool, len(u.Certifications))
	for _, c := range u.Certifications {
		held[c] = true
	}
	for _, c := range required {
		if !held[c] {
			return false
		}
	}
	return true
}

// Actor is the resolved identity every core operation receives. Credential
// issuance and validation live outside the core.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
