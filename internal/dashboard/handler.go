package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/carebridge/backend/internal/models"
)

// StatusCounter aggregates rows per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// WalletGetter fetches a single wallet by id.
type WalletGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
}

// Handler serves the admin operations overview: job and dispute counts by
// status plus the platform wallet balance. Read-only, admin-gated at the
// router.
type Handler struct {
	posts    StatusCounter
	disputes StatusCounter
	wallets  WalletGetter
	log      *slog.Logger
}

func NewHandler(posts, disputes StatusCounter, wallets WalletGetter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{posts: posts, disputes: disputes, wallets: wallets, log: log}
}

type overviewResponse struct {
	JobsByStatus     map[string]int64 `json:"jobs_by_status"`
	DisputesByStatus map[string]int64 `json:"disputes_by_status"`
	PlatformWallet   walletSummary    `json:"platform_wallet"`
}

type walletSummary struct {
	AvailableCents int64 `json:"available_cents"`
	HeldCents      int64 `json:"held_cents"`
}

// Overview handles GET /v1/admin/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.posts.CountByStatus(ctx)
	if err != nil {
		h.fail(w, "count jobs", err)
		return
	}
	disputes, err := h.disputes.CountByStatus(ctx)
	if err != nil {
		h.fail(w, "count disputes", err)
		return
	}
	platform, err := h.wallets.GetByID(ctx, models.PlatformWalletID)
	if err != nil {
		h.fail(w, "load platform wallet", err)
		return
	}

	resp := overviewResponse{
		JobsByStatus:     jobs,
		DisputesByStatus: disputes,
		PlatformWallet: walletSummary{
			AvailableCents: platform.AvailableCents,
			HeldCents:      platform.HeldCents,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("encode overview response", "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.log.Error("admin overview", "step", msg, "error", err)
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}
