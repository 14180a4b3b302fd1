package domain

import "errors"

// Domain failures. The HTTP layer maps each to a status code and a
// client-facing detail message; nothing here is fatal to the process.
var (
	// ErrUserNotFound is returned when a user id, email or CPF lookup misses.
	ErrUserNotFound = errors.New("user not found")
	// ErrPurchaseNotFound is returned when a purchase id lookup misses.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrEmailTaken is returned when registering with an email already in use.
	ErrEmailTaken = errors.New("email already in use")
	// ErrCPFTaken is returned when registering with a CPF already in use.
	ErrCPFTaken = errors.New("cpf already in use")
	// ErrCodeAlreadyUsed is returned when a purchase code collides with
	// an existing purchase, whether caught by the pre-check or by the
	// storage unique constraint.
	ErrCodeAlreadyUsed = errors.New("purchase code already used")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotOwner is returned when the authenticated user does not own
	// the purchase being mutated.
	ErrNotOwner = errors.New("purchase owned by another user")
	// ErrCPFMismatch is returned when a purchase is created for a CPF
	// other than the authenticated user's own.
	ErrCPFMismatch = errors.New("cpf does not match authenticated user")
	// ErrOwnerTransfer is returned when an update names a CPF other
	// than the purchase's current owner; transfer is forbidden.
	ErrOwnerTransfer = errors.New("purchase transfer is not allowed")
	// ErrPurchaseLocked is returned when mutating a purchase whose
	// status is no longer "In validation".
	ErrPurchaseLocked = errors.New("purchase is not in validation")
	// ErrStatusNotSeeded signals a deployment defect: a canonical
	// status row is missing from the database.
	ErrStatusNotSeeded = errors.New("purchase status not seeded")
	// ErrCashbackUnavailable is returned when the external cashback
	// service cannot supply a value; clients may retry.
	ErrCashbackUnavailable = errors.New("external cashback service unavailable")
)
