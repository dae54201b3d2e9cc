package models

import (
	"github.com/shopspring/decimal"
)

// SystemConfig is the settlement configuration snapshot. It is loaded once
// per request or task and passed explicitly; nothing caches it globally.
type SystemConfig struct {
	// Currency every balance mutation is converted into before applying.
	BaseCurrency string

	// Currency promo cashback amounts are reported in.
	ReportingCurrency string

	// Percentage of the discounted payment amount granted to a promo code
	// owner when a referred consumer completes a qualifying payment.
	PromoCashbackPercent decimal.Decimal

	// Payable kinds eligible for promo-code cashbacks.
	PromoEligibleKinds []PayableKind
}

func (c SystemConfig) PromoEligible(kind PayableKind) bool {
	for _, k := range c.PromoEligibleKinds {
		if k == kind {
			return true
		}
	}
	return false
}
