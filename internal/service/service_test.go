package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/rbarros/cashback-system/internal/domain"
	"github.com/rbarros/cashback-system/internal/model"
)

type stubRepo struct {
	userByID       *model.User
	userByEmail    *model.User
	userByCPF      *model.User
	createdUser    *model.User
	purchaseByID   *model.Purchase
	purchaseByCode *model.Purchase
	list           []model.Purchase
	created        *model.Purchase
	createErr      error
	updated        *model.Purchase
	updateErr      error
	deleted        *model.Purchase
	deleteErr      error
	sum            decimal.Decimal
	sumErr         error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, in model.UserCreate, passwordHash []byte) (*model.User, error) {
	return s.createdUser, nil
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if s.userByID == nil {
		return nil, domain.ErrUserNotFound
	}
	return s.userByID, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.userByEmail == nil {
		return nil, domain.ErrUserNotFound
	}
	return s.userByEmail, nil
}

func (s *stubRepo) GetUserByCPF(ctx context.Context, cpf string) (*model.User, error) {
	if s.userByCPF == nil {
		return nil, domain.ErrUserNotFound
	}
	return s.userByCPF, nil
}

func (s *stubRepo) GetPurchaseByID(ctx context.Context, id int64) (*model.Purchase, error) {
	if s.purchaseByID == nil {
		return nil, domain.ErrPurchaseNotFound
	}
	return s.purchaseByID, nil
}

func (s *stubRepo) GetPurchaseByCode(ctx context.Context, code string) (*model.Purchase, error) {
	if s.purchaseByCode == nil {
		return nil, domain.ErrPurchaseNotFound
	}
	return s.purchaseByCode, nil
}

func (s *stubRepo) ListPurchasesByUser(ctx context.Context, userID int64, skip, limit int) ([]model.Purchase, error) {
	return s.list, nil
}

func (s *stubRepo) CreatePurchase(ctx context.Context, in model.PurchaseCreate) (*model.Purchase, error) {
	return s.created, s.createErr
}

func (s *stubRepo) UpdatePurchase(ctx context.Context, p *model.Purchase, patch model.PurchasePatch) (*model.Purchase, error) {
	return s.updated, s.updateErr
}

func (s *stubRepo) DeletePurchaseByID(ctx context.Context, id int64) (*model.Purchase, error) {
	return s.deleted, s.deleteErr
}

func (s *stubRepo) SumCashbackByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.sum, s.sumErr
}

type stubProvider struct {
	value decimal.Decimal
	err   error
}

func (s *stubProvider) AccumulatedCashback(ctx context.Context, cpf string) (decimal.Decimal, error) {
	return s.value, s.err
}

func actor() *model.User {
	return &model.User{ID: 1, Email: "joao@example.com", CPF: "12345678901"}
}

func inValidationPurchase() *model.Purchase {
	return &model.Purchase{
		ID:       7,
		Code:     "ABC123",
		Value:    decimal.RequireFromString("100"),
		Date:     time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		UserID:   1,
		Status:   model.StatusInValidation,
		OwnerCPF: "12345678901",
	}
}

func strPtr(s string) *string { return &s }

func TestRegisterUser_DuplicateEmail(t *testing.T) {
	svc := NewService(&stubRepo{userByEmail: actor()}, nil)

	_, err := svc.RegisterUser(context.Background(), model.UserCreate{
		FullName: "João", Email: "joao@example.com", CPF: "12345678901", Password: "secret",
	})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("error = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterUser_DuplicateCPF(t *testing.T) {
	svc := NewService(&stubRepo{userByCPF: actor()}, nil)

	_, err := svc.RegisterUser(context.Background(), model.UserCreate{
		FullName: "João", Email: "new@example.com", CPF: "12345678901", Password: "secret",
	})
	if !errors.Is(err, domain.ErrCPFTaken) {
		t.Fatalf("error = %v, want ErrCPFTaken", err)
	}
}

func TestAuthenticateUser_WrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	u := actor()
	u.PasswordHash = hash
	svc := NewService(&stubRepo{userByEmail: u}, nil)

	_, err = svc.AuthenticateUser(context.Background(), "joao@example.com", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateUser_UnknownEmail(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.AuthenticateUser(context.Background(), "nobody@example.com", "pass")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestCreatePurchase_CPFMismatch(t *testing.T) {
	svc := NewService(&stubRepo{userByID: actor()}, nil)

	_, err := svc.CreatePurchase(context.Background(), 1, model.PurchaseCreate{
		Code: "ABC123", Value: decimal.RequireFromString("100"), CPF: "99999999999",
	})
	if !errors.Is(err, domain.ErrCPFMismatch) {
		t.Fatalf("error = %v, want ErrCPFMismatch", err)
	}
}

func TestCreatePurchase_DuplicateCode(t *testing.T) {
	svc := NewService(&stubRepo{
		userByID:       actor(),
		purchaseByCode: inValidationPurchase(),
	}, nil)

	_, err := svc.CreatePurchase(context.Background(), 1, model.PurchaseCreate{
		Code: "ABC123", Value: decimal.RequireFromString("100"), CPF: "12345678901",
	})
	if !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Fatalf("error = %v, want ErrCodeAlreadyUsed", err)
	}
}

func TestCreatePurchase_Success(t *testing.T) {
	want := inValidationPurchase()
	svc := NewService(&stubRepo{userByID: actor(), created: want}, nil)

	got, err := svc.CreatePurchase(context.Background(), 1, model.PurchaseCreate{
		Code: "ABC123", Value: decimal.RequireFromString("100"), CPF: "12345678901",
	})
	if err != nil {
		t.Fatalf("CreatePurchase error: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected purchase: %+v", got)
	}
}

func TestUpdatePurchase_NotFound(t *testing.T) {
	svc := NewService(&stubRepo{userByID: actor()}, nil)

	_, err := svc.UpdatePurchase(context.Background(), 1, 7, model.PurchasePatch{})
	if !errors.Is(err, domain.ErrPurchaseNotFound) {
		t.Fatalf("error = %v, want ErrPurchaseNotFound", err)
	}
}

func TestUpdatePurchase_NotOwner(t *testing.T) {
	p := inValidationPurchase()
	p.UserID = 2
	svc := NewService(&stubRepo{userByID: actor(), purchaseByID: p}, nil)

	_, err := svc.UpdatePurchase(context.Background(), 1, 7, model.PurchasePatch{})
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("error = %v, want ErrNotOwner", err)
	}
}

func TestUpdatePurchase_LockedWhenApproved(t *testing.T) {
	p := inValidationPurchase()
	p.Status = model.StatusApproved
	svc := NewService(&stubRepo{userByID: actor(), purchaseByID: p}, nil)

	_, err := svc.UpdatePurchase(context.Background(), 1, 7, model.PurchasePatch{})
	if !errors.Is(err, domain.ErrPurchaseLocked) {
		t.Fatalf("error = %v, want ErrPurchaseLocked", err)
	}
}

func TestUpdatePurchase_OwnerTransferForbidden(t *testing.T) {
	svc := NewService(&stubRepo{userByID: actor(), purchaseByID: inValidationPurchase()}, nil)

	_, err := svc.UpdatePurchase(context.Background(), 1, 7, model.PurchasePatch{
		CPF: strPtr("99999999999"),
	})
	if !errors.Is(err, domain.ErrOwnerTransfer) {
		t.Fatalf("error = %v, want ErrOwnerTransfer", err)
	}
}

func TestUpdatePurchase_CodeCollision(t *testing.T) {
	other := inValidationPurchase()
	other.ID = 8
	other.Code = "TAKEN"

	svc := NewService(&stubRepo{
		userByID:       actor(),
		purchaseByID:   inValidationPurchase(),
		purchaseByCode: other,
	}, nil)

	_, err := svc.UpdatePurchase(context.Background(), 1, 7, model.PurchasePatch{
		Code: strPtr("TAKEN"),
	})
	if !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Fatalf("error = %v, want ErrCodeAlreadyUsed", err)
	}
}

func TestUpdatePurchase_SameCodeIsNotACollision(t *testing.T) {
	p := inValidationPurchase()
	updated := inValidationPurchase()

	svc := NewService(&stubRepo{
		userByID:       actor(),
		purchaseByID:   p,
		purchaseByCode: p,
		updated:        updated,
	}, nil)

	got, err := svc.UpdatePurchase(context.Background(), 1, 7, model.PurchasePatch{
		Code: strPtr(p.Code),
	})
	if err != nil {
		t.Fatalf("UpdatePurchase error: %v", err)
	}
	if got != updated {
		t.Fatalf("unexpected purchase: %+v", got)
	}
}

func TestDeletePurchase_NotOwner(t *testing.T) {
	p := inValidationPurchase()
	p.UserID = 2
	svc := NewService(&stubRepo{userByID: actor(), purchaseByID: p}, nil)

	_, err := svc.DeletePurchase(context.Background(), 1, 7)
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("error = %v, want ErrNotOwner", err)
	}
}

func TestDeletePurchase_GoneBetweenLookups(t *testing.T) {
	svc := NewService(&stubRepo{userByID: actor(), purchaseByID: inValidationPurchase()}, nil)

	_, err := svc.DeletePurchase(context.Background(), 1, 7)
	if !errors.Is(err, domain.ErrPurchaseNotFound) {
		t.Fatalf("error = %v, want ErrPurchaseNotFound", err)
	}
}

func TestAggregateCashback_SumsInternalAndExternal(t *testing.T) {
	svc := NewService(
		&stubRepo{userByID: actor(), sum: decimal.RequireFromString("12.50")},
		&stubProvider{value: decimal.RequireFromString("37.50")},
	)

	total, err := svc.AggregateCashback(context.Background(), 1)
	if err != nil {
		t.Fatalf("AggregateCashback error: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("total = %s, want 50.00", total)
	}
}

func TestAggregateCashback_NoPartialResultOnUpstreamFailure(t *testing.T) {
	svc := NewService(
		&stubRepo{userByID: actor(), sum: decimal.RequireFromString("12.50")},
		&stubProvider{err: domain.ErrCashbackUnavailable},
	)

	_, err := svc.AggregateCashback(context.Background(), 1)
	if !errors.Is(err, domain.ErrCashbackUnavailable) {
		t.Fatalf("error = %v, want ErrCashbackUnavailable", err)
	}
}
