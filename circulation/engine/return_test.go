package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlibra/circulation-engine/circulation"
)

func Test_Return_FinalizesLoanWithoutFine_WhenOnTime(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	clock.Advance(24 * time.Hour)

	// act
	receipt, err := eng.Return(context.Background(), loan.ID, clock.Now())

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanFinalized, receipt.Loan.State)
	require.NotNil(t, receipt.Loan.ReturnedAt)
	assert.Nil(t, receipt.Fine)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyAvailable)
	assertAvailableInvariant(t, store, titleID)
}

func Test_Return_GeneratesPendingFine_WhenLate(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	patronID := newPatron()
	loan := givenOpenLoan(t, eng, patronID, copyIDs[0])

	returnedAt := loan.DueAt.Add(3 * 24 * time.Hour)
	clock.Advance(returnedAt.Sub(clock.Now()))

	// act
	receipt, err := eng.Return(context.Background(), loan.ID, returnedAt)

	// assert
	require.NoError(t, err)
	require.NotNil(t, receipt.Fine)
	assert.Equal(t, circulation.FinePending, receipt.Fine.State)
	assert.Equal(t, patronID, receipt.Fine.PatronID)
	assert.Equal(t, loan.ID, receipt.Fine.LoanID)

	// 3 whole days at the default rate of 0.50
	expected := decimal.RequireFromString("1.50")
	assert.True(t, receipt.Fine.Amount.Equal(expected), "expected %s, got %s", expected, receipt.Fine.Amount)
}

func Test_Return_NoFine_WhenLessThanOneFullDayLate(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	returnedAt := loan.DueAt.Add(23*time.Hour + 59*time.Minute)
	clock.Advance(returnedAt.Sub(clock.Now()))

	// act
	receipt, err := eng.Return(context.Background(), loan.ID, returnedAt)

	// assert
	require.NoError(t, err)
	assert.Nil(t, receipt.Fine)
}

func Test_Return_Error_WhenLoanAlreadyFinalized(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	returnedAt := loan.DueAt.Add(3 * 24 * time.Hour)
	clock.Advance(returnedAt.Sub(clock.Now()))

	_, err := eng.Return(context.Background(), loan.ID, returnedAt)
	require.NoError(t, err)

	// act
	_, err = eng.Return(context.Background(), loan.ID, returnedAt.Add(time.Hour))

	// assert - the duplicate return must not generate a second fine
	assert.ErrorIs(t, err, circulation.ErrAlreadyFinalized)
	assertSingleFineForLoan(t, eng, loan)
}

func Test_Return_Error_WhenLoanUnknown(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)

	// act
	_, err := eng.Return(context.Background(), uuid.New(), clock.Now())

	// assert
	assert.ErrorIs(t, err, circulation.ErrLoanNotFound)
}

func Test_Return_UsesEngineClock_WhenReturnedAtZero(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	clock.Advance(time.Hour)

	// act
	receipt, err := eng.Return(context.Background(), loan.ID, time.Time{})

	// assert
	require.NoError(t, err)
	require.NotNil(t, receipt.Loan.ReturnedAt)
	assert.Equal(t, circulation.ToTimestamp(clock.Now()), *receipt.Loan.ReturnedAt)
}

func Test_Return_HandsCopyToQueueHead_InsteadOfMakingItAvailable(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	waiterID := newPatron()
	reservation, err := eng.Reserve(context.Background(), waiterID, titleID, 0)
	require.NoError(t, err)

	clock.Advance(time.Hour)

	// act
	_, err = eng.Return(context.Background(), loan.ID, clock.Now())

	// assert - the copy is Reserved for the waiter, never Available in between
	require.NoError(t, err)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyReserved)
	assertAvailableInvariant(t, store, titleID)
	assertReservationState(t, store, reservation.ID, circulation.ReservationFulfilled)
}

func Test_Checkout_PicksUpHold_WhenCopyHeldForPatron(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	waiterID := newPatron()
	reservation, err := eng.Reserve(context.Background(), waiterID, titleID, 0)
	require.NoError(t, err)

	_, err = eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)

	// act
	pickedUp, err := eng.Checkout(context.Background(), waiterID, copyIDs[0], 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, waiterID, pickedUp.PatronID)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyOnLoan)
	assertReservationState(t, store, reservation.ID, circulation.ReservationFulfilled)
	assertReservationHoldsNoCopy(t, store, reservation.ID)
}

func Test_Checkout_Error_WhenCopyHeldForAnotherPatron(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	waiterID := newPatron()
	_, err := eng.Reserve(context.Background(), waiterID, titleID, 0)
	require.NoError(t, err)

	_, err = eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)

	// act
	_, err = eng.Checkout(context.Background(), newPatron(), copyIDs[0], 0)

	// assert
	assert.ErrorIs(t, err, circulation.ErrCopyUnavailable)
}
