// Package domain holds the purchasing business rules.
package domain

import (
	"github.com/shopspring/decimal"

	"github.com/rbarros/cashback-system/internal/model"
)

// AutoApproveCPF is the identifier whose purchases skip manual
// validation and start out approved.
const AutoApproveCPF = "15350946056"

// Tier bounds and rates. Rates are decimal constants so monetary
// results never pass through binary floating point.
var (
	tierOneLimit = decimal.NewFromInt(1000)
	tierTwoLimit = decimal.NewFromInt(1500)

	rateTierOne   = decimal.RequireFromString("0.10")
	rateTierTwo   = decimal.RequireFromString("0.15")
	rateTierThree = decimal.RequireFromString("0.20")
)

// CalculateCashback maps a purchase value to its cashback amount:
// 10% for values up to 1000, 15% up to 1500, 20% above that.
// Both bounds are inclusive in the lower tier.
func CalculateCashback(purchaseValue decimal.Decimal) decimal.Decimal {
	switch {
	case purchaseValue.LessThanOrEqual(tierOneLimit):
		return purchaseValue.Mul(rateTierOne)
	case purchaseValue.LessThanOrEqual(tierTwoLimit):
		return purchaseValue.Mul(rateTierTwo)
	default:
		return purchaseValue.Mul(rateTierThree)
	}
}

// DefaultStatusName returns the initial workflow status for a purchase
// owned by the user with the given CPF.
func DefaultStatusName(cpf string) string {
	if cpf == AutoApproveCPF {
		return model.StatusApproved
	}
	return model.StatusInValidation
}
