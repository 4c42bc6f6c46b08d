package model

import "errors"

// Error taxonomy shared by every engine operation. Callers match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrStakeTooHigh      = errors.New("stake too high")
	ErrTierLocked        = errors.New("tier locked")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStateConflict     = errors.New("state conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrExpired           = errors.New("expired")
	ErrNotFound          = errors.New("not found")
	ErrLedgerImbalance   = errors.New("ledger imbalance")
)
