package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/database"
	"github.com/carebridge/backend/internal/models"
)

// UserStore is the user repository surface auth needs.
type UserStore interface {
	Create(ctx context.Context, tx pgx.Tx, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// WalletProvisioner creates the user's wallet during registration.
type WalletProvisioner interface {
	Create(ctx context.Context, tx pgx.Tx, w *models.Wallet) error
}

type Service interface {
	Register(ctx context.Context, email, password, displayName, role string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (models.Actor, error)
}

type service struct {
	db      database.TxRunner
	users   UserStore
	wallets WalletProvisioner
	secret  []byte
}

func NewService(db database.TxRunner, users UserStore, wallets WalletProvisioner, secret string) Service {
	return &service{db: db, users: users, wallets: wallets, secret: []byte(secret)}
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Register creates the user and their wallet in one transaction: payer
// wallet for requesters, payee wallet for providers. New users start at
// trust level none until a verification signal arrives.
func (s *service) Register(ctx context.Context, email, password, displayName, role string) (*models.User, error) {
	if role != models.RoleRequester && role != models.RoleProvider {
		return nil, apperrors.Validation("role must be requester or provider")
	}
	if email == "" || password == "" || displayName == "" {
		return nil, apperrors.Validation("email, password and display_name are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "hash password")
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: string(hash),
		TrustLevel:   models.TrustLevelNone,
	}
	walletType := models.WalletTypePayer
	if role == models.RoleProvider {
		walletType = models.WalletTypePayee
	}
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.users.Create(ctx, tx, u); err != nil {
			if apperrors.KindOf(err) == apperrors.KindConflict {
				return apperrors.Conflict("email already registered")
			}
			return err
		}
		return s.wallets.Create(ctx, tx, &models.Wallet{
			ID:         uuid.New(),
			WalletType: walletType,
			UserID:     &u.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return "", apperrors.Unauthorized("invalid credentials")
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", apperrors.Unauthorized("invalid credentials")
	}
	return s.issueToken(u.ID, u.Role)
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (models.Actor, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, apperrors.Unauthorized("invalid token")
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return models.Actor{}, apperrors.Unauthorized("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Actor{}, apperrors.Unauthorized("invalid token subject")
	}
	return models.Actor{ID: id, Role: c.Role}, nil
}
