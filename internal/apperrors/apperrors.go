package apperrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind categorizes an application error.
type Kind string

const (
	KindNotFound                     Kind = "not_found"
	KindUnauthorized                 Kind = "unauthorized"
	KindInvalidTransition            Kind = "invalid_transition"
	KindPolicyViolation              Kind = "policy_violation"
	KindInsufficientAvailableBalance Kind = "insufficient_available_balance"
	KindInsufficientHeldBalance      Kind = "insufficient_held_balance"
	KindInsufficientEscrowBalance    Kind = "insufficient_escrow_balance"
	KindGeofenceViolation            Kind = "geofence_violation"
	KindConcurrentModification       Kind = "concurrent_modification"
	KindConflict                     Kind = "conflict"
	KindValidation                   Kind = "validation"
	KindInternal                     Kind = "internal"
	KindTimeout                      Kind = "timeout"
	KindCanceled                     Kind = "canceled"
)

// Policy violation reason codes surfaced to callers.
const (
	ReasonTrustLevel       = "trust_level_too_low"
	ReasonCertification    = "certification_missing"
	ReasonScheduleConflict = "schedule_conflict"
	ReasonReservedProvider = "reserved_provider_mismatch"
)

// AppError is the closed error type every core operation returns. It carries
// a machine-readable Kind plus the detail fields specific kinds need.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error

	// Reason is set for policy violations (machine-readable reason code).
	Reason string

	// DistanceM and AllowanceM are set for geofence violations, both
	// rounded to whole meters.
	DistanceM  int
	AllowanceM int
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// NotFound reports an absent job, wallet, dispute or assignment.
func NotFound(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports an actor lacking the required relationship to the entity.
func Unauthorized(format string, args ...any) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a state change absent from the transition table.
func InvalidTransition(jobID uuid.UUID, from, to string) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("job %s: illegal transition %s -> %s", jobID, from, to),
	}
}

// PolicyViolation reports a failed business precondition with a reason code.
func PolicyViolation(reason, format string, args ...any) *AppError {
	return &AppError{
		Kind:    KindPolicyViolation,
		Message: fmt.Sprintf(format, args...),
		Reason:  reason,
	}
}

// InsufficientAvailable reports a failed available-balance guard.
func InsufficientAvailable(walletID uuid.UUID, amount int64) *AppError {
	return &AppError{
		Kind:    KindInsufficientAvailableBalance,
		Message: fmt.Sprintf("wallet %s: available balance below %d", walletID, amount),
	}
}

// InsufficientHeld reports a failed held-balance guard.
func InsufficientHeld(walletID uuid.UUID, amount int64) *AppError {
	return &AppError{
		Kind:    KindInsufficientHeldBalance,
		Message: fmt.Sprintf("wallet %s: held balance below %d", walletID, amount),
	}
}

// InsufficientEscrow reports an escrow wallet short of the amount a
// settlement requires. This is a data-integrity alarm, not a retryable
// user error.
func InsufficientEscrow(walletID uuid.UUID, need, have int64) *AppError {
	return &AppError{
		Kind:    KindInsufficientEscrowBalance,
		Message: fmt.Sprintf("escrow wallet %s: need %d, holds %d", walletID, need, have),
	}
}

// Geofence reports a check-in/out sample outside the allowed radius.
// distanceM and allowanceM are rounded whole meters.
func Geofence(distanceM, allowanceM int) *AppError {
	return &AppError{
		Kind:       KindGeofenceViolation,
		Message:    fmt.Sprintf("location is %dm from the job site (allowed %dm)", distanceM, allowanceM),
		DistanceM:  distanceM,
		AllowanceM: allowanceM,
	}
}

// ConcurrentModification reports a guarded write that matched zero rows even
// though the entity exists: another writer won the race. Safe to retry once
// after re-reading state.
func ConcurrentModification(format string, args ...any) *AppError {
	return &AppError{Kind: KindConcurrentModification, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness conflict with existing data.
func Conflict(format string, args ...any) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation reports invalid input data.
func Validation(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal reports an unexpected failure the caller cannot act on.
func Internal(format string, args ...any) *AppError {
	return &AppError{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

func isKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

func IsNotFound(err error) bool               { return isKind(err, KindNotFound) }
func IsUnauthorized(err error) bool           { return isKind(err, KindUnauthorized) }
func IsInvalidTransition(err error) bool      { return isKind(err, KindInvalidTransition) }
func IsPolicyViolation(err error) bool        { return isKind(err, KindPolicyViolation) }
func IsInsufficientAvailable(err error) bool  { return isKind(err, KindInsufficientAvailableBalance) }
func IsInsufficientHeld(err error) bool       { return isKind(err, KindInsufficientHeldBalance) }
func IsInsufficientEscrow(err error) bool     { return isKind(err, KindInsufficientEscrowBalance) }
func IsGeofenceViolation(err error) bool      { return isKind(err, KindGeofenceViolation) }
func IsConcurrentModification(err error) bool { return isKind(err, KindConcurrentModification) }
func IsConflict(err error) bool               { return isKind(err, KindConflict) }
func IsValidation(err error) bool             { return isKind(err, KindValidation) }

// KindOf returns the error's Kind, or empty string for foreign errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
