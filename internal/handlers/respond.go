package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/carebridge/backend/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	DistanceM  int    `json:"distance_m,omitempty"`
	AllowanceM int    `json:"allowance_m,omitempty"`
}

// writeAppError maps the error taxonomy onto HTTP statuses. The services
// never see HTTP; this is the only place status codes exist.
func writeAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	body := errorBody{Error: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Reason = appErr.Reason
		body.DistanceM = appErr.DistanceM
		body.AllowanceM = appErr.AllowanceM
	}

	var status int
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindUnauthorized:
		status = http.StatusForbidden
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindInvalidTransition, apperrors.KindConflict, apperrors.KindConcurrentModification:
		status = http.StatusConflict
	case apperrors.KindPolicyViolation:
		status = http.StatusForbidden
	case apperrors.KindInsufficientAvailableBalance,
		apperrors.KindInsufficientHeldBalance,
		apperrors.KindInsufficientEscrowBalance:
		status = http.StatusPaymentRequired
	case apperrors.KindGeofenceViolation:
		status = http.StatusUnprocessableEntity
	case apperrors.KindTimeout:
		status = http.StatusGatewayTimeout
	default:
		logger.Error("request failed", "error", err)
		status = http.StatusInternalServerError
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
