package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/carebridge/backend/internal/middleware"
)

// OTPVerifier issues and consumes one-time verification codes.
type OTPVerifier interface {
	Issue(ctx context.Context, userID uuid.UUID) (string, error)
	VerifyAndConsume(ctx context.Context, userID uuid.UUID, code string) error
}

// VerificationHandler serves /v1/verification endpoints. The issued code
// is returned in the response; delivery over SMS or email is an external
// collaborator's job.
type VerificationHandler struct {
	OTP    OTPVerifier
	Logger *slog.Logger
}

type verifyRequest struct {
	Code string `json:"code"`
}

// IssueOTP handles POST /v1/verification/otp.
func (h *VerificationHandler) IssueOTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	code, err := h.OTP.Issue(r.Context(), actor.ID)
	if err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

// VerifyOTP handles POST /v1/verification/otp/verify.
func (h *VerificationHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, `{"error":"code is required"}`, http.StatusBadRequest)
		return
	}
	if err := h.OTP.VerifyAndConsume(r.Context(), actor.ID, req.Code); err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
