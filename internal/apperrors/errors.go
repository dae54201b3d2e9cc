package apperrors

import (
	"errors"
)

var (
	// Configuration errors. Fatal for the enclosing operation, never retried.
	ErrNoActiveConfig = errors.New("no active system configuration")
	ErrNoBaseCurrency = errors.New("no currency is flagged as base")

	// Conversion errors. Abort the current operation, retryable after the
	// rate data is fixed.
	ErrCurrencyNotFound = errors.New("currency not found")

	// User facing validation errors.
	ErrInvalidTransition = errors.New("status transition is not permitted")
	ErrStatusNotFound    = errors.New("status not found")
	ErrPayableNotFound   = errors.New("payable object not found")

	// Caller contract violations, programming errors rather than business ones.
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrCashbackCycle  = errors.New("cashback entry must not be its own ancestor")

	ErrTransactionNotFound = errors.New("ledger entry not found")
	ErrBalanceNotFound     = errors.New("balance not found")
	ErrPromoCodeNotFound   = errors.New("promo code not found")
	ErrPromoCodeValueTaken = errors.New("promo code value already taken")
	ErrNoUnusedBenefit     = errors.New("no unconsumed promo code benefit")
)
