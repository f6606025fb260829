package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

// memWallets is an in-memory WalletStore with the same semantics as the
// real repository: guarded balance updates and the unique
// (reference_type, reference_id, kind) constraint on the ledger.
type memWallets struct {
	mu         sync.Mutex
	wallets    map[uuid.UUID]*models.Wallet
	ledger     []*models.LedgerTransaction
	lockOrders [][]uuid.UUID
}

func newMemWallets(ws ...*models.Wallet) *memWallets {
	m := &memWallets{wallets: make(map[uuid.UUID]*models.Wallet)}
	for _, w := range ws {
		cp := *w
		m.wallets[w.ID] = &cp
	}
	return m
}

func (m *memWallets) get(id uuid.UUID) (*models.Wallet, error) {
	w, ok := m.wallets[id]
	if !ok {
		return nil, apperrors.NotFound("wallet %s not found", id)
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) Create(_ context.Context, _ pgx.Tx, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.wallets[w.ID]; exists {
		return apperrors.Conflict("wallet %s already exists", w.ID)
	}
	cp := *w
	m.wallets[w.ID] = &cp
	return nil
}

func (m *memWallets) GetByID(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memWallets) GetByUser(_ context.Context, _ pgx.Tx, userID uuid.UUID, walletType string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID != nil && *w.UserID == userID && w.WalletType == walletType {
			cp := *w
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("no %s wallet for user %s", walletType, userID)
}

func (m *memWallets) GetEscrowByInstance(_ context.Context, _ pgx.Tx, jobInstanceID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.JobInstanceID != nil && *w.JobInstanceID == jobInstanceID && w.WalletType == models.WalletTypeEscrow {
			cp := *w
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("no escrow wallet for instance %s", jobInstanceID)
}

func (m *memWallets) GetByUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType string) (*models.Wallet, error) {
	return m.GetByUser(ctx, tx, userID, walletType)
}

func (m *memWallets) LockAllForUpdate(_ context.Context, _ pgx.Tx, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	m.lockOrders = append(m.lockOrders, sorted)
	out := make(map[uuid.UUID]*models.Wallet, len(sorted))
	for _, id := range sorted {
		w, err := m.get(id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

func (m *memWallets) Hold(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.AvailableCents < amount {
		return apperrors.InsufficientAvailable(id, amount)
	}
	w.AvailableCents -= amount
	w.HeldCents += amount
	return nil
}

func (m *memWallets) Release(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.HeldCents < amount {
		return apperrors.InsufficientHeld(id, amount)
	}
	w.HeldCents -= amount
	w.AvailableCents += amount
	return nil
}

func (m *memWallets) Capture(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.HeldCents < amount {
		return apperrors.InsufficientHeld(id, amount)
	}
	w.HeldCents -= amount
	return nil
}

func (m *memWallets) DebitAvailable(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.AvailableCents < amount {
		return apperrors.InsufficientAvailable(id, amount)
	}
	w.AvailableCents -= amount
	return nil
}

func (m *memWallets) CreditAvailable(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return apperrors.NotFound("wallet %s not found", id)
	}
	w.AvailableCents += amount
	return nil
}

func (m *memWallets) CreditHeld(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return apperrors.NotFound("wallet %s not found", id)
	}
	w.HeldCents += amount
	return nil
}

func (m *memWallets) InsertLedger(_ context.Context, _ pgx.Tx, lt *models.LedgerTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.ledger {
		if e.ReferenceType == lt.ReferenceType && e.ReferenceID == lt.ReferenceID && e.Kind == lt.Kind {
			return false, nil
		}
	}
	cp := *lt
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	m.ledger = append(m.ledger, &cp)
	return true, nil
}

// --- inspection helpers ---

func (m *memWallets) available(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id].AvailableCents
}

func (m *memWallets) held(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id].HeldCents
}

func (m *memWallets) escrowID(jobInstanceID uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.JobInstanceID != nil && *w.JobInstanceID == jobInstanceID {
			return w.ID
		}
	}
	return uuid.Nil
}

func (m *memWallets) ledgerRows(refType string, refID uuid.UUID) []*models.LedgerTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerTransaction
	for _, e := range m.ledger {
		if e.ReferenceType == refType && e.ReferenceID == refID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// totalCents sums available+held across every wallet. Settlement never
// creates or destroys money, so this is constant through any flow.
func (m *memWallets) totalCents() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, w := range m.wallets {
		total += w.AvailableCents + w.HeldCents
	}
	return total
}

func payerWallet(userID uuid.UUID, available int64) *models.Wallet {
	return &models.Wallet{ID: uuid.New(), WalletType: models.WalletTypePayer, UserID: &userID, AvailableCents: available}
}

func payeeWallet(userID uuid.UUID) *models.Wallet {
	return &models.Wallet{ID: uuid.New(), WalletType: models.WalletTypePayee, UserID: &userID}
}

func platformWallet() *models.Wallet {
	return &models.Wallet{ID: models.PlatformWalletID, WalletType: models.WalletTypePlatform}
}
