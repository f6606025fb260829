package apperrors

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError translates store-level errors into AppErrors so callers never
// see a raw pgx error. Unrecognized errors pass through unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Kind: KindTimeout, Message: "operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Kind: KindCanceled, Message: "operation canceled", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Kind: KindNotFound, Message: "resource not found", Cause: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &AppError{Kind: KindConflict, Message: "value already exists", Cause: pgErr}
		case pgerrcode.ForeignKeyViolation:
			return &AppError{Kind: KindValidation, Message: "referenced resource does not exist", Cause: pgErr}
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return &AppError{Kind: KindValidation, Message: "value violates a constraint", Cause: pgErr}
		default:
			return &AppError{Kind: KindInternal, Message: "database error", Cause: pgErr}
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. The ledger uses this to treat a replayed settlement write as
// already applied.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
