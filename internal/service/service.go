// Package service implements the business logic of the cashback service.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/rbarros/cashback-system/internal/domain"
	"github.com/rbarros/cashback-system/internal/model"
)

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, in model.UserCreate, passwordHash []byte) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByCPF(ctx context.Context, cpf string) (*model.User, error)
	GetPurchaseByID(ctx context.Context, id int64) (*model.Purchase, error)
	GetPurchaseByCode(ctx context.Context, code string) (*model.Purchase, error)
	ListPurchasesByUser(ctx context.Context, userID int64, skip, limit int) ([]model.Purchase, error)
	CreatePurchase(ctx context.Context, in model.PurchaseCreate) (*model.Purchase, error)
	UpdatePurchase(ctx context.Context, p *model.Purchase, patch model.PurchasePatch) (*model.Purchase, error)
	DeletePurchaseByID(ctx context.Context, id int64) (*model.Purchase, error)
	SumCashbackByUser(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// CashbackProvider reports the externally accumulated cashback for a CPF.
type CashbackProvider interface {
	AccumulatedCashback(ctx context.Context, cpf string) (decimal.Decimal, error)
}

// Service contains the purchase lifecycle and cashback business logic.
type Service struct {
	repo     Repository
	external CashbackProvider
}

// NewService creates a service over the given repository and external
// cashback provider.
func NewService(repo Repository, external CashbackProvider) *Service {
	return &Service{
		repo:     repo,
		external: external,
	}
}

// Close releases the service resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser creates a new account. Email and CPF must be unused.
func (s *Service) RegisterUser(ctx context.Context, in model.UserCreate) (*model.User, error) {
	if _, err := s.repo.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	if _, err := s.repo.GetUserByCPF(ctx, in.CPF); err == nil {
		return nil, domain.ErrCPFTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, in, hash)
}

// AuthenticateUser verifies the email and password pair and returns
// the matching user.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return u, nil
}

// CreatePurchase records a purchase for the authenticated user. The
// supplied CPF must be the actor's own and the code must be unused;
// status and cashback defaults are resolved by the repository.
func (s *Service) CreatePurchase(ctx context.Context, actorID int64, in model.PurchaseCreate) (*model.Purchase, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if in.CPF != actor.CPF {
		return nil, domain.ErrCPFMismatch
	}

	// The unique index on code is the authority under concurrent
	// creates; this lookup only produces the friendlier error for the
	// common case.
	if _, err := s.repo.GetPurchaseByCode(ctx, in.Code); err == nil {
		return nil, domain.ErrCodeAlreadyUsed
	} else if !errors.Is(err, domain.ErrPurchaseNotFound) {
		return nil, err
	}

	return s.repo.CreatePurchase(ctx, in)
}

// ListPurchases returns the actor's own purchases, paginated.
func (s *Service) ListPurchases(ctx context.Context, actorID int64, skip, limit int) ([]model.Purchase, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	return s.repo.ListPurchasesByUser(ctx, actor.ID, skip, limit)
}

// UpdatePurchase mutates the identified purchase after the
// authorization checks: the actor must own it, it must still be in
// validation, ownership transfer is forbidden, and a changed code must
// not collide with another purchase. Nil patch fields are untouched;
// the full-replace PUT path supplies every field.
func (s *Service) UpdatePurchase(ctx context.Context, actorID, purchaseID int64, patch model.PurchasePatch) (*model.Purchase, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	if p.UserID != actor.ID {
		return nil, domain.ErrNotOwner
	}

	if p.Status != model.StatusInValidation {
		return nil, domain.ErrPurchaseLocked
	}

	if patch.CPF != nil && *patch.CPF != p.OwnerCPF {
		return nil, domain.ErrOwnerTransfer
	}

	if patch.Code != nil && *patch.Code != p.Code {
		if _, err := s.repo.GetPurchaseByCode(ctx, *patch.Code); err == nil {
			return nil, domain.ErrCodeAlreadyUsed
		} else if !errors.Is(err, domain.ErrPurchaseNotFound) {
			return nil, err
		}
	}

	return s.repo.UpdatePurchase(ctx, p, patch)
}

// DeletePurchase removes the identified purchase if the actor owns it
// and returns the deleted snapshot.
func (s *Service) DeletePurchase(ctx context.Context, actorID, purchaseID int64) (*model.Purchase, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	if p.UserID != actor.ID {
		return nil, domain.ErrNotOwner
	}

	deleted, err := s.repo.DeletePurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		return nil, domain.ErrPurchaseNotFound
	}

	return deleted, nil
}

// AggregateCashback returns the actor's total cashback: the decimal
// sum of recorded cashback values plus the value reported by the
// external service. Upstream failure yields no partial result.
func (s *Service) AggregateCashback(ctx context.Context, actorID int64) (decimal.Decimal, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return decimal.Zero, err
	}

	internal, err := s.repo.SumCashbackByUser(ctx, actor.ID)
	if err != nil {
		return decimal.Zero, err
	}

	if s.external == nil {
		return decimal.Zero, fmt.Errorf("%w: no provider configured", domain.ErrCashbackUnavailable)
	}

	external, err := s.external.AccumulatedCashback(ctx, actor.CPF)
	if err != nil {
		return decimal.Zero, err
	}

	return internal.Add(external), nil
}
