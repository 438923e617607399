package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const hoursPerDay = 24

// DaysLate returns the whole days between due time and actual return,
// floored, never negative. Sub-day lateness counts as zero, so a return at
// dueTime+23h59m charges nothing.
func DaysLate(dueAt time.Time, returnedAt time.Time) int {
	if !returnedAt.After(dueAt) {
		return 0
	}

	return int(returnedAt.Sub(dueAt).Hours()) / hoursPerDay
}

// ComputeFine calculates the late-return penalty: daysLate × dailyRate.
// Returns zero for on-time returns.
func ComputeFine(dueAt time.Time, returnedAt time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	daysLate := DaysLate(dueAt, returnedAt)
	if daysLate == 0 {
		return decimal.Zero
	}

	return dailyRate.Mul(decimal.NewFromInt(int64(daysLate)))
}
