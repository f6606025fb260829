package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/carebridge/backend/internal/middleware"
	"github.com/carebridge/backend/internal/models"
)

// WalletReader is the read-only ledger-store surface for balance and
// history endpoints.
type WalletReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Wallet, error)
	ListLedgerByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]*models.LedgerTransaction, error)
}

// WalletHandler serves /v1/wallets endpoints.
type WalletHandler struct {
	Wallets WalletReader
	Logger  *slog.Logger
}

// MyWallets handles GET /v1/wallets/me.
func (h *WalletHandler) MyWallets(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	wallets, err := h.Wallets.ListByUser(r.Context(), actor.ID)
	if err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

// LedgerByReference handles GET /v1/ledger/{reference_type}/{reference_id}.
// Admin only; the ledger log is the settlement audit surface.
func (h *WalletHandler) LedgerByReference(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !actor.IsAdmin() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/ledger/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Error(w, `{"error":"expected /v1/ledger/{reference_type}/{reference_id}"}`, http.StatusBadRequest)
		return
	}
	refType := parts[0]
	switch refType {
	case models.RefTypeJobPost, models.RefTypeJobInstance, models.RefTypeDispute:
	default:
		http.Error(w, `{"error":"unknown reference type"}`, http.StatusBadRequest)
		return
	}
	refID, err := uuid.Parse(strings.Trim(parts[1], "/"))
	if err != nil {
		http.Error(w, `{"error":"invalid reference id"}`, http.StatusBadRequest)
		return
	}
	txs, err := h.Wallets.ListLedgerByReference(r.Context(), refType, refID)
	if err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}
