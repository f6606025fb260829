package reputation

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/carebridge/backend/internal/models"
)

// Trust signal kinds fired by verification events. The full trust score is
// computed by an external batch collaborator; this hook only raises the
// floor a signal guarantees.
const (
	SignalKYCVerified  = "kyc_verified"
	SignalBankVerified = "bank_verified"
	SignalOTPVerified  = "otp_verified"
)

// Service receives trust signals. The lifecycle core never calls this; it
// only reads trust_level as a precondition.
type Service interface {
	OnTrustSignal(ctx context.Context, userID uuid.UUID, signalKind string)
}

// TrustBumper is the interface the floor-raising implementation needs from
// the user repository.
type TrustBumper interface {
	BumpTrustLevel(ctx context.Context, id uuid.UUID, level int) error
}

type service struct {
	users  TrustBumper
	logger *slog.Logger
}

func NewService(users TrustBumper, logger *slog.Logger) Service {
	return &service{users: users, logger: logger}
}

// signalFloors maps a signal to the minimum trust level it guarantees.
var signalFloors = map[string]int{
	SignalOTPVerified:  models.TrustLevelBasic,
	SignalBankVerified: models.TrustLevelVerified,
	SignalKYCVerified:  models.TrustLevelVerified,
}

func (s *service) OnTrustSignal(ctx context.Context, userID uuid.UUID, signalKind string) {
	floor, ok := signalFloors[signalKind]
	if !ok {
		s.logger.Warn("unknown trust signal", "user_id", userID, "signal", signalKind)
		return
	}
	if err := s.users.BumpTrustLevel(ctx, userID, floor); err != nil {
		s.logger.Error("trust level bump failed", "user_id", userID, "signal", signalKind, "error", err)
	}
}
