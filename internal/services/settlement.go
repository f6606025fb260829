package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

// WalletStore is the ledger-store surface the settlement and dispute
// engines need. All methods run inside the caller's transaction.
type WalletStore interface {
	Create(ctx context.Context, tx pgx.Tx, w *models.Wallet) error
	GetByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType string) (*models.Wallet, error)
	GetEscrowByInstance(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Wallet, error)
	GetByUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType string) (*models.Wallet, error)
	LockAllForUpdate(ctx context.Context, tx pgx.Tx, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error)
	Hold(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	Release(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	Capture(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	DebitAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	CreditAvailable(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	CreditHeld(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	InsertLedger(ctx context.Context, tx pgx.Tx, lt *models.LedgerTransaction) (bool, error)
}

// SettlementEngine moves money for specific lifecycle transitions:
// acceptance funds the escrow, completion splits it, cancellation refunds
// the payer. Every movement is recorded as a tagged ledger row; the tag's
// uniqueness makes a replayed call a no-op on the log.
type SettlementEngine struct {
	wallets WalletStore
}

func NewSettlementEngine(wallets WalletStore) *SettlementEngine {
	return &SettlementEngine{wallets: wallets}
}

func ptr[T any](v T) *T { return &v }

// PublishHold earmarks the job's full cost (amount plus platform fee) on
// the requester's own wallet when the post goes live. No escrow wallet
// exists yet.
func (e *SettlementEngine) PublishHold(ctx context.Context, tx pgx.Tx, post *models.JobPost) error {
	payer, err := e.wallets.GetByUserForUpdate(ctx, tx, post.RequesterID, models.WalletTypePayer)
	if err != nil {
		return fmt.Errorf("lock payer wallet: %w", err)
	}
	total := post.EscrowTotalCents()
	if err := e.wallets.Hold(ctx, tx, payer.ID, total); err != nil {
		return err
	}
	_, err = e.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
		SourceWalletID: ptr(payer.ID),
		DestWalletID:   ptr(payer.ID),
		AmountCents:    total,
		Kind:           models.TxKindHold,
		ReferenceType:  models.RefTypeJobPost,
		ReferenceID:    post.ID,
	})
	return err
}

// FundAcceptance creates the instance's dedicated escrow wallet and moves
// the job's full cost (amount plus platform fee) into it from the
// requester's wallet. It consumes the pre-escrow hold placed at publish
// when it is still present, falling back to available balance otherwise;
// the same money is never held twice.
func (e *SettlementEngine) FundAcceptance(ctx context.Context, tx pgx.Tx, post *models.JobPost, jobInstanceID uuid.UUID) (*models.Wallet, error) {
	total := post.EscrowTotalCents()

	payer, err := e.wallets.GetByUserForUpdate(ctx, tx, post.RequesterID, models.WalletTypePayer)
	if err != nil {
		return nil, fmt.Errorf("lock payer wallet: %w", err)
	}

	escrow := &models.Wallet{
		ID:            uuid.New(),
		WalletType:    models.WalletTypeEscrow,
		JobInstanceID: ptr(jobInstanceID),
	}
	if err := e.wallets.Create(ctx, tx, escrow); err != nil {
		return nil, fmt.Errorf("create escrow wallet: %w", err)
	}

	if payer.HeldCents >= total {
		if err := e.wallets.Capture(ctx, tx, payer.ID, total); err != nil {
			return nil, err
		}
	} else {
		if err := e.wallets.DebitAvailable(ctx, tx, payer.ID, total); err != nil {
			return nil, err
		}
	}
	if err := e.wallets.CreditHeld(ctx, tx, escrow.ID, total); err != nil {
		return nil, err
	}

	_, err = e.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
		SourceWalletID: ptr(payer.ID),
		DestWalletID:   ptr(escrow.ID),
		AmountCents:    total,
		Kind:           models.TxKindHold,
		ReferenceType:  models.RefTypeJobInstance,
		ReferenceID:    jobInstanceID,
	})
	if err != nil {
		return nil, err
	}
	escrow.HeldCents = total
	return escrow, nil
}

// CompletionSplit pays the provider and the platform out of escrow. The
// escrow must cover both legs; a shortfall is a data-integrity alarm, not a
// user error.
func (e *SettlementEngine) CompletionSplit(ctx context.Context, tx pgx.Tx, post *models.JobPost, jobInstanceID, providerID uuid.UUID) error {
	escrow, err := e.wallets.GetEscrowByInstance(ctx, tx, jobInstanceID)
	if err != nil {
		return fmt.Errorf("find escrow wallet: %w", err)
	}
	payee, err := e.wallets.GetByUser(ctx, tx, providerID, models.WalletTypePayee)
	if err != nil {
		return fmt.Errorf("find payee wallet: %w", err)
	}

	locked, err := e.wallets.LockAllForUpdate(ctx, tx, escrow.ID, payee.ID, models.PlatformWalletID)
	if err != nil {
		return err
	}
	escrow = locked[escrow.ID]

	payeeAmount := post.TotalAmountCents
	fee := post.PlatformFeeCents
	if escrow.HeldCents < payeeAmount+fee {
		return apperrors.InsufficientEscrow(escrow.ID, payeeAmount+fee, escrow.HeldCents)
	}

	if err := e.wallets.Capture(ctx, tx, escrow.ID, payeeAmount); err != nil {
		return err
	}
	if err := e.wallets.CreditAvailable(ctx, tx, payee.ID, payeeAmount); err != nil {
		return err
	}
	if _, err := e.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
		SourceWalletID: ptr(escrow.ID),
		DestWalletID:   ptr(payee.ID),
		AmountCents:    payeeAmount,
		Kind:           models.TxKindRelease,
		ReferenceType:  models.RefTypeJobInstance,
		ReferenceID:    jobInstanceID,
	}); err != nil {
		return err
	}

	if fee > 0 {
		if err := e.wallets.Capture(ctx, tx, escrow.ID, fee); err != nil {
			return err
		}
		if err := e.wallets.CreditAvailable(ctx, tx, models.PlatformWalletID, fee); err != nil {
			return err
		}
		if _, err := e.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
			SourceWalletID: ptr(escrow.ID),
			DestWalletID:   ptr(models.PlatformWalletID),
			AmountCents:    fee,
			Kind:           models.TxKindCapture,
			ReferenceType:  models.RefTypeJobInstance,
			ReferenceID:    jobInstanceID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// CancellationRefund returns the job's funds to the requester. Before
// acceptance no escrow wallet exists and the requester's own hold is simply
// released; after acceptance the full remaining escrow balance moves back,
// leaving the escrow wallet at zero but in place.
func (e *SettlementEngine) CancellationRefund(ctx context.Context, tx pgx.Tx, post *models.JobPost, instance *models.JobInstance) error {
	payer, err := e.wallets.GetByUser(ctx, tx, post.RequesterID, models.WalletTypePayer)
	if err != nil {
		return fmt.Errorf("find payer wallet: %w", err)
	}

	if instance == nil {
		if _, err := e.wallets.LockAllForUpdate(ctx, tx, payer.ID); err != nil {
			return err
		}
		total := post.EscrowTotalCents()
		if err := e.wallets.Release(ctx, tx, payer.ID, total); err != nil {
			return err
		}
		_, err = e.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
			SourceWalletID: ptr(payer.ID),
			DestWalletID:   ptr(payer.ID),
			AmountCents:    total,
			Kind:           models.TxKindRelease,
			ReferenceType:  models.RefTypeJobPost,
			ReferenceID:    post.ID,
		})
		return err
	}

	escrow, err := e.wallets.GetEscrowByInstance(ctx, tx, instance.ID)
	if err != nil {
		return fmt.Errorf("find escrow wallet: %w", err)
	}
	locked, err := e.wallets.LockAllForUpdate(ctx, tx, escrow.ID, payer.ID)
	if err != nil {
		return err
	}
	remaining := locked[escrow.ID].HeldCents
	if remaining == 0 {
		return nil
	}
	if err := e.wallets.Capture(ctx, tx, escrow.ID, remaining); err != nil {
		return err
	}
	if err := e.wallets.CreditAvailable(ctx, tx, payer.ID, remaining); err != nil {
		return err
	}
	_, err = e.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
		SourceWalletID: ptr(escrow.ID),
		DestWalletID:   ptr(payer.ID),
		AmountCents:    remaining,
		Kind:           models.TxKindReversal,
		ReferenceType:  models.RefTypeJobInstance,
		ReferenceID:    instance.ID,
	})
	return err
}

// ExpiryRelease releases the pre-escrow hold of a posted job that expired
// before any provider accepted it.
func (e *SettlementEngine) ExpiryRelease(ctx context.Context, tx pgx.Tx, post *models.JobPost) error {
	payer, err := e.wallets.GetByUserForUpdate(ctx, tx, post.RequesterID, models.WalletTypePayer)
	if err != nil {
		return fmt.Errorf("lock payer wallet: %w", err)
	}
	total := post.EscrowTotalCents()
	if err := e.wallets.Release(ctx, tx, payer.ID, total); err != nil {
		return err
	}
	_, err = e.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
		SourceWalletID: ptr(payer.ID),
		DestWalletID:   ptr(payer.ID),
		AmountCents:    total,
		Kind:           models.TxKindRelease,
		ReferenceType:  models.RefTypeJobPost,
		ReferenceID:    post.ID,
	})
	return err
}
