package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/audit"
	"github.com/carebridge/backend/internal/database"
	"github.com/carebridge/backend/internal/models"
)

// DisputeStore is the dispute repository surface the engine needs.
type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	AssignArbitrator(ctx context.Context, tx pgx.Tx, id, arbitratorID uuid.UUID) error
	RecordSettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, note string, refund, payout int64, idempotencyKey string, at time.Time) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error
}

// DisputeInstanceStore resolves the disputed job's context.
type DisputeInstanceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.JobInstance, error)
	GetLatestAssignment(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Assignment, error)
}

// Settlement is the outcome of a dispute settlement, also returned on a
// replay with a matching idempotency key.
type Settlement struct {
	DisputeID   uuid.UUID `json:"dispute_id"`
	Status      string    `json:"status"`
	RefundCents int64     `json:"refund_cents"`
	PayoutCents int64     `json:"payout_cents"`
	Replayed    bool      `json:"replayed"`
}

// DisputeService is an independent state machine over the same escrow
// wallet as the job lifecycle: an arbitrator splits the held funds between
// refund and payout outside the normal transitions, under the same locking
// discipline.
type DisputeService struct {
	db        database.TxRunner
	disputes  DisputeStore
	instances DisputeInstanceStore
	posts     PostStore
	wallets   WalletStore
	events    EventStore
	auditor   audit.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewDisputeService(
	db database.TxRunner,
	disputes DisputeStore,
	instances DisputeInstanceStore,
	posts PostStore,
	wallets WalletStore,
	events EventStore,
	auditor audit.Recorder,
	logger *slog.Logger,
) *DisputeService {
	return &DisputeService{
		db:        db,
		disputes:  disputes,
		instances: instances,
		posts:     posts,
		wallets:   wallets,
		events:    events,
		auditor:   auditor,
		logger:    logger,
		now:       time.Now,
	}
}

// Open creates a dispute against a job instance. Any party to the job (or
// an admin) may open one; the engine only mutates it afterwards.
func (s *DisputeService) Open(ctx context.Context, jobInstanceID uuid.UUID, actor models.Actor, reason string) (*models.Dispute, error) {
	if reason == "" {
		return nil, apperrors.Validation("reason is required")
	}
	if _, err := s.instances.GetByID(ctx, jobInstanceID); err != nil {
		return nil, err
	}
	d := &models.Dispute{
		ID:            uuid.New(),
		JobInstanceID: jobInstanceID,
		OpenedByID:    actor.ID,
		Status:        models.DisputeStatusOpen,
		Reason:        reason,
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, audit.Entry("dispute", d.ID, "open", "", models.DisputeStatusOpen, actor.ID,
		map[string]string{"reason": reason}))
	return d, nil
}

// StartReview moves an open dispute into review and assigns the arbitrator.
func (s *DisputeService) StartReview(ctx context.Context, disputeID uuid.UUID, actor models.Actor) error {
	if !actor.IsAdmin() {
		return apperrors.Unauthorized("only arbitrators review disputes")
	}
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != models.DisputeStatusOpen {
			return apperrors.InvalidTransition(disputeID, d.Status, models.DisputeStatusInReview)
		}
		if err := s.disputes.AssignArbitrator(ctx, tx, disputeID, actor.ID); err != nil {
			return err
		}
		return s.disputes.UpdateStatus(ctx, tx, disputeID, models.DisputeStatusOpen, models.DisputeStatusInReview)
	})
	if err != nil {
		return err
	}
	s.auditor.Record(ctx, audit.Entry("dispute", disputeID, "start_review",
		models.DisputeStatusOpen, models.DisputeStatusInReview, actor.ID, nil))
	return nil
}

// Settle splits the escrowed funds between a refund to the payer and a
// payout to the payee. Calling it again with the same idempotency key after
// the dispute is resolved returns the recorded amounts and moves no money.
func (s *DisputeService) Settle(ctx context.Context, disputeID uuid.UUID, actor models.Actor, refund, payout int64, note, idempotencyKey string) (*Settlement, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only arbitrators settle disputes")
	}
	if refund < 0 || payout < 0 {
		return nil, apperrors.Validation("refund and payout must be >= 0")
	}

	var result *Settlement
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		if !d.Settleable() {
			if d.Status == models.DisputeStatusResolved && idempotencyKey != "" && d.IdempotencyKey == idempotencyKey {
				result = &Settlement{
					DisputeID:   d.ID,
					Status:      d.Status,
					RefundCents: derefInt64(d.RefundCents),
					PayoutCents: derefInt64(d.PayoutCents),
					Replayed:    true,
				}
				return nil
			}
			return apperrors.InvalidTransition(disputeID, d.Status, models.DisputeStatusResolved)
		}

		if d.ArbitratorID == nil {
			if err := s.disputes.AssignArbitrator(ctx, tx, disputeID, actor.ID); err != nil {
				return err
			}
		}

		instance, err := s.instances.GetByID(ctx, d.JobInstanceID)
		if err != nil {
			return err
		}
		post, err := s.posts.GetByID(ctx, instance.JobPostID)
		if err != nil {
			return err
		}
		assignment, err := s.instances.GetLatestAssignment(ctx, tx, d.JobInstanceID)
		if err != nil {
			return err
		}

		escrow, err := s.wallets.GetEscrowByInstance(ctx, tx, d.JobInstanceID)
		if err != nil {
			return fmt.Errorf("find escrow wallet: %w", err)
		}
		payer, err := s.wallets.GetByUser(ctx, tx, post.RequesterID, models.WalletTypePayer)
		if err != nil {
			return fmt.Errorf("find payer wallet: %w", err)
		}
		payee, err := s.wallets.GetByUser(ctx, tx, assignment.ProviderID, models.WalletTypePayee)
		if err != nil {
			return fmt.Errorf("find payee wallet: %w", err)
		}

		locked, err := s.wallets.LockAllForUpdate(ctx, tx, escrow.ID, payer.ID, payee.ID)
		if err != nil {
			return err
		}
		escrow = locked[escrow.ID]

		total := refund + payout
		if total > escrow.HeldCents {
			return apperrors.InsufficientEscrow(escrow.ID, total, escrow.HeldCents)
		}
		if total > 0 {
			if err := s.wallets.Capture(ctx, tx, escrow.ID, total); err != nil {
				return err
			}
		}
		if refund > 0 {
			if err := s.wallets.CreditAvailable(ctx, tx, payer.ID, refund); err != nil {
				return err
			}
			if _, err := s.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
				SourceWalletID: ptr(escrow.ID),
				DestWalletID:   ptr(payer.ID),
				AmountCents:    refund,
				Kind:           models.TxKindReversal,
				ReferenceType:  models.RefTypeDispute,
				ReferenceID:    d.ID,
				IdempotencyKey: idempotencyKey,
			}); err != nil {
				return err
			}
		}
		if payout > 0 {
			if err := s.wallets.CreditAvailable(ctx, tx, payee.ID, payout); err != nil {
				return err
			}
			if _, err := s.wallets.InsertLedger(ctx, tx, &models.LedgerTransaction{
				SourceWalletID: ptr(escrow.ID),
				DestWalletID:   ptr(payee.ID),
				AmountCents:    payout,
				Kind:           models.TxKindCredit,
				ReferenceType:  models.RefTypeDispute,
				ReferenceID:    d.ID,
				IdempotencyKey: idempotencyKey,
			}); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.disputes.RecordSettlement(ctx, tx, disputeID, models.DisputeStatusResolved, note, refund, payout, idempotencyKey, now); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]any{
			"dispute_id":   d.ID,
			"refund_cents": refund,
			"payout_cents": payout,
			"note":         note,
		})
		if err := s.events.Append(ctx, tx, &models.JobEvent{
			JobInstanceID: d.JobInstanceID,
			EventType:     models.EventDisputeTimeline,
			ActorID:       &actor.ID,
			Payload:       payload,
		}); err != nil {
			return err
		}

		result = &Settlement{
			DisputeID:   d.ID,
			Status:      models.DisputeStatusResolved,
			RefundCents: refund,
			PayoutCents: payout,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		return result, nil
	}

	s.auditor.Record(ctx, audit.Entry("dispute", disputeID, "settle",
		models.DisputeStatusInReview, models.DisputeStatusResolved, actor.ID,
		map[string]int64{"refund_cents": refund, "payout_cents": payout}))
	return result, nil
}

// Reject closes a dispute without moving money; the escrow stays in place
// for the normal lifecycle to settle. Rejecting an already-rejected
// dispute is a no-op.
func (s *DisputeService) Reject(ctx context.Context, disputeID uuid.UUID, actor models.Actor, note string) error {
	if !actor.IsAdmin() {
		return apperrors.Unauthorized("only arbitrators reject disputes")
	}
	var replayed bool
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		if d.Status == models.DisputeStatusRejected {
			replayed = true
			return nil
		}
		if !d.Settleable() {
			return apperrors.InvalidTransition(disputeID, d.Status, models.DisputeStatusRejected)
		}
		if d.ArbitratorID == nil {
			if err := s.disputes.AssignArbitrator(ctx, tx, disputeID, actor.ID); err != nil {
				return err
			}
		}
		return s.disputes.RecordSettlement(ctx, tx, disputeID, models.DisputeStatusRejected, note, 0, 0, "", s.now())
	})
	if err != nil || replayed {
		return err
	}
	s.auditor.Record(ctx, audit.Entry("dispute", disputeID, "reject", "", models.DisputeStatusRejected, actor.ID,
		map[string]string{"note": note}))
	return nil
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
