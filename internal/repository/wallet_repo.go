package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

const walletColumns = `id, wallet_type, user_id, job_instance_id, available_cents, held_cents, created_at, updated_at`

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.WalletType, &w.UserID, &w.JobInstanceID, &w.AvailableCents, &w.HeldCents, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &w, nil
}

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *models.Wallet) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO wallets (id, wallet_type, user_id, job_instance_id, available_cents, held_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, w.ID, w.WalletType, w.UserID, w.JobInstanceID, w.AvailableCents, w.HeldCents).Scan(&w.CreatedAt, &w.UpdatedAt)
	return apperrors.MapDBError(err)
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

// GetForUpdate locks the wallet row for the remainder of the transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

// GetByUser returns a user's wallet of the given type without locking it.
// Used only to learn wallet ids before taking locks in ascending order.
func (r *WalletRepo) GetByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType string) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND wallet_type = $2
	`, userID, walletType))
}

// GetEscrowByInstance returns the escrow wallet of a job instance without
// locking it.
func (r *WalletRepo) GetEscrowByInstance(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE job_instance_id = $1 AND wallet_type = 'escrow'
	`, jobInstanceID))
}

// ListByUser returns all wallets owned by a user, for balance reads
// outside a transaction.
func (r *WalletRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Wallet, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	var out []*models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, apperrors.MapDBError(rows.Err())
}

// GetByUserForUpdate locks a user's wallet of the given type.
func (r *WalletRepo) GetByUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType string) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND wallet_type = $2 FOR UPDATE
	`, userID, walletType))
}

// GetEscrowForUpdate locks the escrow wallet scoped to a job instance.
func (r *WalletRepo) GetEscrowForUpdate(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE job_instance_id = $1 AND wallet_type = 'escrow' FOR UPDATE
	`, jobInstanceID))
}

// LockAllForUpdate acquires row locks on every wallet id in ascending order,
// the fixed total order all code paths use so concurrent transfers touching
// the same pair of wallets cannot deadlock.
func (r *WalletRepo) LockAllForUpdate(ctx context.Context, tx pgx.Tx, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	out := make(map[uuid.UUID]*models.Wallet, len(sorted))
	for _, id := range sorted {
		if _, ok := out[id]; ok {
			continue
		}
		w, err := r.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

// Hold moves amount from available to held on one wallet. The write itself
// is guarded so it fails closed under concurrent writers.
func (r *WalletRepo) Hold(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	var available int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET available_cents = available_cents - $1, held_cents = held_cents + $1, updated_at = now()
		WHERE id = $2 AND available_cents >= $1
		RETURNING available_cents
	`, amount, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.InsufficientAvailable(id, amount)
	}
	return apperrors.MapDBError(err)
}

// Release moves amount from held back to available on one wallet.
func (r *WalletRepo) Release(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	var held int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET held_cents = held_cents - $1, available_cents = available_cents + $1, updated_at = now()
		WHERE id = $2 AND held_cents >= $1
		RETURNING held_cents
	`, amount, id).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.InsufficientHeld(id, amount)
	}
	return apperrors.MapDBError(err)
}

// Capture removes amount from held only; the matching credit on another
// wallet is the caller's responsibility inside the same transaction.
func (r *WalletRepo) Capture(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	var held int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET held_cents = held_cents - $1, updated_at = now()
		WHERE id = $2 AND held_cents >= $1
		RETURNING held_cents
	`, amount, id).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.InsufficientHeld(id, amount)
	}
	return apperrors.MapDBError(err)
}

// DebitAvailable removes amount from available only.
func (r *WalletRepo) DebitAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	var available int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET available_cents = available_cents - $1, updated_at = now()
		WHERE id = $2 AND available_cents >= $1
		RETURNING available_cents
	`, amount, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.InsufficientAvailable(id, amount)
	}
	return apperrors.MapDBError(err)
}

// CreditAvailable adds amount to available.
func (r *WalletRepo) CreditAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallets SET available_cents = available_cents + $1, updated_at = now() WHERE id = $2
	`, amount, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("wallet %s not found", id)
	}
	return nil
}

// CreditHeld adds amount to held. Escrow funding lands here.
func (r *WalletRepo) CreditHeld(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallets SET held_cents = held_cents + $1, updated_at = now() WHERE id = $2
	`, amount, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("wallet %s not found", id)
	}
	return nil
}

// Transfer debits available on the source and credits available on the
// destination. Both wallets must already be locked by the caller in
// ascending-id order; either failure aborts the whole transaction.
func (r *WalletRepo) Transfer(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amount int64) error {
	if err := r.DebitAvailable(ctx, tx, fromID, amount); err != nil {
		return err
	}
	return r.CreditAvailable(ctx, tx, toID, amount)
}

// InsertLedger appends one ledger row. The unique constraint on
// (reference_type, reference_id, kind) makes retried settlement calls
// idempotent: a duplicate insert is silently ignored and reported as
// applied=false.
func (r *WalletRepo) InsertLedger(ctx context.Context, tx pgx.Tx, lt *models.LedgerTransaction) (applied bool, err error) {
	if lt.ID == uuid.Nil {
		lt.ID = uuid.New()
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_transactions
			(id, source_wallet_id, dest_wallet_id, amount_cents, kind, reference_type, reference_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reference_type, reference_id, kind) DO NOTHING
	`, lt.ID, lt.SourceWalletID, lt.DestWalletID, lt.AmountCents, lt.Kind, lt.ReferenceType, lt.ReferenceID, lt.IdempotencyKey)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListLedgerByReference returns the ledger rows for one business event.
func (r *WalletRepo) ListLedgerByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]*models.LedgerTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source_wallet_id, dest_wallet_id, amount_cents, kind, reference_type, reference_id, idempotency_key, created_at
		FROM ledger_transactions
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at
	`, referenceType, referenceID)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	var list []*models.LedgerTransaction
	for rows.Next() {
		var lt models.LedgerTransaction
		if err := rows.Scan(&lt.ID, &lt.SourceWalletID, &lt.DestWalletID, &lt.AmountCents, &lt.Kind, &lt.ReferenceType, &lt.ReferenceID, &lt.IdempotencyKey, &lt.CreatedAt); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		list = append(list, &lt)
	}
	return list, apperrors.MapDBError(rows.Err())
}
