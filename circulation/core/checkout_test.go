package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/core"
)

var blockThreshold = decimal.RequireFromString("10.00")

const maxLoans = 5

func Test_DecideCheckout_Success_WhenCopyAvailableAndPatronInGoodStanding(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyAvailable,
		OutstandingBalance: decimal.Zero,
		OpenLoanCount:      0,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.NoError(t, err)
}

func Test_DecideCheckout_Success_WhenReservedCopyHeldForPatron(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyReserved,
		CopyHeldForPatron:  true,
		OutstandingBalance: decimal.Zero,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.NoError(t, err)
}

func Test_DecideCheckout_Error_WhenReservedCopyHeldForAnotherPatron(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyReserved,
		CopyHeldForPatron:  false,
		OutstandingBalance: decimal.Zero,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.ErrorIs(t, err, circulation.ErrCopyUnavailable)
}

func Test_DecideCheckout_Error_WhenCopyOnLoan(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyOnLoan,
		OutstandingBalance: decimal.Zero,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.ErrorIs(t, err, circulation.ErrCopyUnavailable)
}

func Test_DecideCheckout_Error_WhenSanctionActive(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyAvailable,
		SanctionActive:     true,
		OutstandingBalance: decimal.Zero,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.ErrorIs(t, err, circulation.ErrPatronBlocked)
}

func Test_DecideCheckout_Error_WhenBalanceAtBlockThreshold(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyAvailable,
		OutstandingBalance: blockThreshold,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.ErrorIs(t, err, circulation.ErrPatronBlocked)
}

func Test_DecideCheckout_Success_WhenBalanceJustBelowBlockThreshold(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyAvailable,
		OutstandingBalance: blockThreshold.Sub(decimal.RequireFromString("0.01")),
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.NoError(t, err)
}

func Test_DecideCheckout_Error_WhenLoanLimitReached(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyAvailable,
		OutstandingBalance: decimal.Zero,
		OpenLoanCount:      maxLoans,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.ErrorIs(t, err, circulation.ErrLimitExceeded)
}

func Test_DecideCheckout_SanctionTakesPrecedenceOverUnavailableCopy(t *testing.T) {
	// arrange
	state := core.CheckoutState{
		CopyState:          circulation.CopyOnLoan,
		SanctionActive:     true,
		OutstandingBalance: decimal.Zero,
	}

	// act
	err := core.DecideCheckout(state, blockThreshold, maxLoans)

	// assert
	assert.ErrorIs(t, err, circulation.ErrPatronBlocked)
}

func Test_DecideRenewal_Success_WhenActiveLoanUnderLimitAndNoQueue(t *testing.T) {
	// arrange
	state := core.RenewalState{
		LoanState:    circulation.LoanActive,
		RenewalCount: 1,
	}

	// act
	err := core.DecideRenewal(state, 2)

	// assert
	assert.NoError(t, err)
}

func Test_DecideRenewal_Error_WhenLoanFinalized(t *testing.T) {
	// arrange
	state := core.RenewalState{LoanState: circulation.LoanFinalized}

	// act
	err := core.DecideRenewal(state, 2)

	// assert
	assert.ErrorIs(t, err, circulation.ErrAlreadyFinalized)
}

func Test_DecideRenewal_Error_WhenLoanOverdue(t *testing.T) {
	// arrange
	state := core.RenewalState{LoanState: circulation.LoanOverdue}

	// act
	err := core.DecideRenewal(state, 2)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalDenied)
}

func Test_DecideRenewal_Error_WhenRenewalLimitReached(t *testing.T) {
	// arrange
	state := core.RenewalState{
		LoanState:    circulation.LoanActive,
		RenewalCount: 2,
	}

	// act
	err := core.DecideRenewal(state, 2)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalDenied)
}

func Test_DecideRenewal_Error_WhenReservationQueueNotEmpty(t *testing.T) {
	// arrange
	state := core.RenewalState{
		LoanState:     circulation.LoanActive,
		QueueNotEmpty: true,
	}

	// act
	err := core.DecideRenewal(state, 2)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalDenied)
}
