package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/reputation"
)

// OTPStore issues and consumes one-time verification codes. Codes live in
// redis under a per-user key with a TTL; consuming a code deletes it, so a
// code can verify at most once.
type OTPStore struct {
	rdb        *redis.Client
	reputation reputation.Service
	ttl        time.Duration
	logger     *slog.Logger
}

func NewOTPStore(rdb *redis.Client, rep reputation.Service, ttl time.Duration, logger *slog.Logger) *OTPStore {
	return &OTPStore{rdb: rdb, reputation: rep, ttl: ttl, logger: logger}
}

func otpKey(userID uuid.UUID) string {
	return "otp:" + userID.String()
}

// Issue generates a fresh 6-digit code for the user, replacing any
// outstanding one, and returns it for delivery by the caller.
func (s *OTPStore) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindInternal, "generate code")
	}
	code := fmt.Sprintf("%06d", n.Int64())
	if err := s.rdb.Set(ctx, otpKey(userID), code, s.ttl).Err(); err != nil {
		return "", apperrors.Wrap(err, apperrors.KindInternal, "store code")
	}
	return code, nil
}

// VerifyAndConsume checks the submitted code against the stored one and
// deletes it on match, then fires the otp_verified trust signal. A missing
// or expired code and a mismatch are both unauthorized.
func (s *OTPStore) VerifyAndConsume(ctx context.Context, userID uuid.UUID, code string) error {
	key := otpKey(userID)
	stored, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return apperrors.Unauthorized("verification code expired or not issued")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "read code")
	}
	if stored != code {
		return apperrors.Unauthorized("verification code mismatch")
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Error("consume verification code", "user_id", userID, "error", err)
	}
	s.reputation.OnTrustSignal(ctx, userID, reputation.SignalOTPVerified)
	return nil
}
