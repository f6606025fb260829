package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/carebridge/backend/internal/middleware"
	"github.com/carebridge/backend/internal/models"
	"github.com/carebridge/backend/internal/services"
)

// Disputes is the dispute engine surface the handler exposes over HTTP.
type Disputes interface {
	Open(ctx context.Context, jobInstanceID uuid.UUID, actor models.Actor, reason string) (*models.Dispute, error)
	StartReview(ctx context.Context, disputeID uuid.UUID, actor models.Actor) error
	Settle(ctx context.Context, disputeID uuid.UUID, actor models.Actor, refund, payout int64, note, idempotencyKey string) (*services.Settlement, error)
	Reject(ctx context.Context, disputeID uuid.UUID, actor models.Actor, note string) error
}

type DisputeHandler struct {
	Disputes Disputes
	Logger   *slog.Logger
}

type openDisputeRequest struct {
	JobInstanceID uuid.UUID `json:"job_instance_id"`
	Reason        string    `json:"reason"`
}

type settleDisputeRequest struct {
	RefundCents    int64  `json:"refund_cents"`
	PayoutCents    int64  `json:"payout_cents"`
	Note           string `json:"note"`
	IdempotencyKey string `json:"idempotency_key"`
}

type rejectDisputeRequest struct {
	Note string `json:"note"`
}

// OpenDispute handles POST /v1/disputes.
func (h *DisputeHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req openDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, err := h.Disputes.Open(r.Context(), req.JobInstanceID, actor, req.Reason)
	if err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// DisputeAction handles POST /v1/disputes/{id}/{action} for review, settle
// and reject.
func (h *DisputeHandler) DisputeAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, action, ok := extractID(r, "/v1/disputes/")
	if !ok {
		http.Error(w, `{"error":"invalid dispute id"}`, http.StatusBadRequest)
		return
	}
	switch action {
	case "review":
		if err := h.Disputes.StartReview(r.Context(), id, actor); err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"dispute_id": id.String(), "status": models.DisputeStatusInReview})
	case "settle":
		var req settleDisputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		result, err := h.Disputes.Settle(r.Context(), id, actor, req.RefundCents, req.PayoutCents, req.Note, req.IdempotencyKey)
		if err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "reject":
		var req rejectDisputeRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		if err := h.Disputes.Reject(r.Context(), id, actor, req.Note); err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"dispute_id": id.String(), "status": models.DisputeStatusRejected})
	default:
		http.Error(w, `{"error":"unknown action"}`, http.StatusNotFound)
	}
}
