package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet types.
const (
	WalletTypePayer    = "payer"
	WalletTypePayee    = "payee"
	WalletTypeEscrow   = "escrow"
	WalletTypePlatform = "platform"
)

// PlatformWalletID is the singleton wallet collecting platform fees,
// seeded by migration.
var PlatformWalletID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Wallet holds money in minor currency units. AvailableCents and HeldCents
// are each non-negative at every committed state; the repository enforces
// this with guarded updates.
type Wallet struct {
	ID             uuid.UUID  `json:"id"`
	WalletType     string     `json:"wallet_type"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	JobInstanceID  *uuid.UUID `json:"job_instance_id,omitempty"`
	AvailableCents int64      `json:"available_cents"`
	HeldCents      int64      `json:"held_cents"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Ledger transaction kinds.
const (
	TxKindHold     = "hold"
	TxKindRelease  = "release"
	TxKindCapture  = "capture"
	TxKindCredit   = "credit"
	TxKindReversal = "reversal"
)

// Ledger reference types, naming the business event behind a movement.
const (
	RefTypeJobPost     = "job_post"
	RefTypeJobInstance = "job_instance"
	RefTypeDispute     = "dispute"
)

// LedgerTransaction is one immutable money movement between at most two
// wallets. The (reference_type, reference_id, kind) triple is unique; a
// replayed settlement insert is ignored rather than double-applied.
type LedgerTransaction struct {
	ID             uuid.UUID  `json:"id"`
	SourceWalletID *uuid.UUID `json:"source_wallet_id,omitempty"`
	DestWalletID   *uuid.UUID `json:"dest_wallet_id,omitempty"`
	AmountCents    int64      `json:"amount_cents"`
	Kind           string     `json:"kind"`
	ReferenceType  string     `json:"reference_type"`
	ReferenceID    uuid.UUID  `json:"reference_id"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
