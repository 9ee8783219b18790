// Package operator handles POS user authentication: PIN login and session
// tokens for the routes that mutate fiscal state.
package operator

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lithipos/internal/platform/middleware"
	dErrors "lithipos/pkg/errors"
	"lithipos/pkg/platform/sentinel"
)

// Store is satisfied by storage.OperatorStore.
type Store interface {
	Create(ctx context.Context, op *Operator) error
	FindByUsername(ctx context.Context, username string) (*Operator, error)
}

const tokenTTL = 12 * time.Hour

// Service issues and validates operator sessions.
type Service struct {
	store      Store
	signingKey []byte
}

func NewService(store Store, signingKey string) *Service {
	return &Service{store: store, signingKey: []byte(signingKey)}
}

// CreateOperator registers a new till user with a bcrypt-hashed PIN.
func (s *Service) CreateOperator(ctx context.Context, username, pin string, role Role) (*Operator, error) {
	if username == "" || pin == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "username and pin are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash pin")
	}
	op := &Operator{
		ID:        uuid.NewString(),
		Username:  username,
		PINHash:   string(hash),
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, op); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "operator %s already exists", username)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create operator")
	}
	return op, nil
}

// Login checks the PIN and returns a signed session token. Unknown user and
// wrong PIN are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, pin string) (string, error) {
	op, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "find operator")
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PINHash), []byte(pin)) != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  op.ID,
		"role": string(op.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign session token")
	}
	return token, nil
}

// ValidateToken implements middleware.JWTValidator.
func (s *Service) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid claims")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing subject")
	}
	return &middleware.JWTClaims{OperatorID: sub, Role: role}, nil
}

// SeedDefault creates the development manager account if no operator exists
// under that name. Production deployments provision operators explicitly.
func (s *Service) SeedDefault(ctx context.Context, username, pin string) error {
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return nil
	}
	_, err := s.CreateOperator(ctx, username, pin, RoleManager)
	if err != nil && dErrors.HasCode(err, dErrors.CodeConflict) {
		return nil
	}
	return err
}
