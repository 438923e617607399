package core

import (
	"github.com/shopspring/decimal"

	"github.com/openlibra/circulation-engine/circulation"
)

// CheckoutState is the state relevant to one checkout decision, projected
// from the affected copy and the patron's history.
type CheckoutState struct {
	CopyState          circulation.CopyState
	CopyHeldForPatron  bool
	SanctionActive     bool
	OutstandingBalance decimal.Decimal
	OpenLoanCount      int
}

// DecideCheckout applies the checkout business rules.
//
// Rules, in precedence order:
//
//	ERROR: ErrPatronBlocked if a sanction is active for the patron
//	ERROR: ErrPatronBlocked if the unpaid fine balance has reached the block threshold
//	ERROR: ErrLimitExceeded if the patron is at the open loan limit
//	ERROR: ErrCopyUnavailable unless the copy is Available, or Reserved and
//	       held for exactly this patron (hold pickup)
func DecideCheckout(s CheckoutState, blockThreshold decimal.Decimal, maxLoans int) error {
	if s.SanctionActive {
		return circulation.ErrPatronBlocked
	}

	if s.OutstandingBalance.GreaterThanOrEqual(blockThreshold) {
		return circulation.ErrPatronBlocked
	}

	if s.OpenLoanCount >= maxLoans {
		return circulation.ErrLimitExceeded
	}

	switch s.CopyState {
	case circulation.CopyAvailable:
		return nil
	case circulation.CopyReserved:
		if s.CopyHeldForPatron {
			return nil
		}

		return circulation.ErrCopyUnavailable
	default:
		return circulation.ErrCopyUnavailable
	}
}
