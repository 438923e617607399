package core

import (
	"github.com/shopspring/decimal"

	"github.com/openlibra/circulation-engine/circulation"
)

// RemainingBalance derives the unpaid part of a fine. It is never stored;
// recomputing it from the payment ledger is what rules out drift.
func RemainingBalance(fineAmount decimal.Decimal, paidTotal decimal.Decimal) decimal.Decimal {
	return fineAmount.Sub(paidTotal)
}

// DecidePayment applies the settlement rules for one payment against a fine.
//
// Rules:
//
//	ERROR: ErrInvalidAmount for zero or negative payments
//	ERROR: ErrOverPayment if the payment exceeds the remaining balance
func DecidePayment(amount decimal.Decimal, remaining decimal.Decimal) error {
	if !amount.IsPositive() {
		return circulation.ErrInvalidAmount
	}

	if amount.GreaterThan(remaining) {
		return circulation.ErrOverPayment
	}

	return nil
}

// SettlesFine reports whether the payment clears the remaining balance,
// flipping the fine to Paid.
func SettlesFine(amount decimal.Decimal, remaining decimal.Decimal) bool {
	return amount.Equal(remaining)
}
