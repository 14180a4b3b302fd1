// Package model contains the domain entities of the cashback service.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered account identified by email and CPF.
type User struct {
	ID           int64
	FullName     string
	Email        string
	CPF          string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Canonical purchase status names. The rows are seeded at startup;
// a purchase is mutable only while its status is StatusInValidation.
const (
	StatusApproved     = "Approved"
	StatusInValidation = "In validation"
	StatusDisapproved  = "Disapproved"
)

// IsValidStatus reports whether name is one of the canonical statuses.
func IsValidStatus(name string) bool {
	return name == StatusApproved || name == StatusInValidation || name == StatusDisapproved
}

// PurchaseStatus is the stored workflow state reference entity.
type PurchaseStatus struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Purchase is the central entity. Status and OwnerCPF carry the
// denormalized view resolved by the repository joins; StatusID and
// UserID are the stored foreign keys.
type Purchase struct {
	ID            int64
	Code          string
	Value         decimal.Decimal
	Date          time.Time
	CashbackValue decimal.Decimal
	StatusID      int64
	UserID        int64
	Status        string
	OwnerCPF      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var hundred = decimal.NewFromInt(100)

// CashbackPercent returns the cashback as a percentage of the purchase
// value, rounded to 2 decimal places. A zero value yields zero.
func (p *Purchase) CashbackPercent() decimal.Decimal {
	if p.Value.IsZero() {
		return decimal.Zero
	}
	return p.CashbackValue.Div(p.Value).Mul(hundred).Round(2)
}

// PurchaseCreate carries the fields accepted when recording a purchase.
// Status and CashbackValue are optional; absent values are resolved by
// the repository via the default-status rule and the cashback policy.
type PurchaseCreate struct {
	Code          string
	Value         decimal.Decimal
	Date          time.Time
	CPF           string
	Status        string
	CashbackValue *decimal.Decimal
}

// PurchasePatch is the explicit partial-update type: nil fields are
// left untouched by the merge. A changed Value with a nil
// CashbackValue causes the cashback to be recomputed.
type PurchasePatch struct {
	Code          *string
	Value         *decimal.Decimal
	Date          *time.Time
	Status        *string
	CPF           *string
	CashbackValue *decimal.Decimal
}

// UserCreate carries the fields accepted at registration.
type UserCreate struct {
	FullName string
	Email    string
	CPF      string
	Password string
}
