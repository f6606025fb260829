package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

type fakeDB struct{}

func (fakeDB) WithTx(_ context.Context, fn func(pgx.Tx) error) error { return fn(nil) }

type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
}

func (m *memUsers) Create(_ context.Context, _ pgx.Tx, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[u.Email]; exists {
		return apperrors.Conflict("users_email_key")
	}
	cp := *u
	m.byEmail[u.Email] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, apperrors.NotFound("user %s not found", email)
	}
	cp := *u
	return &cp, nil
}

type memWallets struct {
	mu      sync.Mutex
	created []*models.Wallet
}

func (m *memWallets) Create(_ context.Context, _ pgx.Tx, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.created = append(m.created, &cp)
	return nil
}

func newTestService() (Service, *memUsers, *memWallets) {
	users := &memUsers{byEmail: make(map[string]*models.User)}
	wallets := &memWallets{}
	return NewService(fakeDB{}, users, wallets, "test-secret"), users, wallets
}

func TestRegister(t *testing.T) {
	svc, users, wallets := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "ana@example.com", "hunter22", "Ana", models.RoleRequester)
	require.NoError(t, err)
	assert.Equal(t, models.TrustLevelNone, u.TrustLevel)
	assert.NotEqual(t, "hunter22", u.PasswordHash, "password stored in the clear")

	require.Len(t, wallets.created, 1)
	assert.Equal(t, models.WalletTypePayer, wallets.created[0].WalletType)
	require.NotNil(t, wallets.created[0].UserID)
	assert.Equal(t, u.ID, *wallets.created[0].UserID)

	p, err := svc.Register(ctx, "bo@example.com", "hunter22", "Bo", models.RoleProvider)
	require.NoError(t, err)
	require.Len(t, wallets.created, 2)
	assert.Equal(t, models.WalletTypePayee, wallets.created[1].WalletType)
	assert.Equal(t, p.ID, *wallets.created[1].UserID)

	_, err = svc.Register(ctx, "ana@example.com", "other", "Ana2", models.RoleRequester)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	_, err = svc.Register(ctx, "c@example.com", "pw", "C", models.RoleAdmin)
	assert.True(t, apperrors.IsValidation(err), "admin self-registration must be rejected")
	_, err = svc.Register(ctx, "", "pw", "D", models.RoleRequester)
	assert.True(t, apperrors.IsValidation(err))

	_, ok := users.byEmail["ana@example.com"]
	assert.True(t, ok)
}

func TestLoginAndValidateToken(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "ana@example.com", "hunter22", "Ana", models.RoleProvider)
	require.NoError(t, err)

	token, err := svc.Login(ctx, "ana@example.com", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	actor, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, actor.ID)
	assert.Equal(t, models.RoleProvider, actor.Role)

	_, err = svc.Login(ctx, "ana@example.com", "wrong")
	assert.True(t, apperrors.IsUnauthorized(err))
	_, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	assert.True(t, apperrors.IsUnauthorized(err), "unknown email must look like bad credentials")
}

func TestValidateToken_Rejects(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "ana@example.com", "hunter22", "Ana", models.RoleRequester)
	require.NoError(t, err)
	token, err := svc.Login(ctx, "ana@example.com", "hunter22")
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"empty", ""},
		{"tampered", token + "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ValidateToken(ctx, tc.token)
			assert.True(t, apperrors.IsUnauthorized(err))
		})
	}

	// A token from a different secret must not validate.
	other := NewService(fakeDB{}, &memUsers{byEmail: map[string]*models.User{
		"x@example.com": {ID: uuid.New(), Role: models.RoleRequester, PasswordHash: "$2a$10$invalid"},
	}}, &memWallets{}, "other-secret")
	_, err = other.ValidateToken(ctx, token)
	assert.True(t, apperrors.IsUnauthorized(err))
}
