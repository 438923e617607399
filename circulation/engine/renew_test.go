package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlibra/circulation-engine/circulation"
)

func Test_Renew_ExtendsDueTimeFromCurrentDue(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	// renewing early must extend from the due time, not from now
	clock.Advance(time.Hour)

	// act
	renewed, err := eng.Renew(context.Background(), loan.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, loan.DueAt.Add(eng.Config().LoanPeriodDefault), renewed.DueAt)
	assert.Equal(t, 1, renewed.RenewalCount)
}

func Test_Renew_Error_WhenLoanOverdue(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	clock.Advance(loan.DueAt.Sub(clock.Now()) + time.Hour)

	// act
	_, err := eng.Renew(context.Background(), loan.ID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalDenied)
}

func Test_Renew_Error_WhenRenewalLimitReached(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	for i := 0; i < eng.Config().MaxRenewals; i++ {
		_, err := eng.Renew(context.Background(), loan.ID)
		require.NoError(t, err)
	}

	// act
	_, err := eng.Renew(context.Background(), loan.ID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalDenied)
}

func Test_Renew_Error_WhenReservationQueuesForTitle(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	_, err := eng.Reserve(context.Background(), newPatron(), titleID, 0)
	require.NoError(t, err)

	// act
	_, err = eng.Renew(context.Background(), loan.ID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalDenied)
}

func Test_Renew_Error_WhenLoanFinalized(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	_, err := eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)

	// act
	_, err = eng.Renew(context.Background(), loan.ID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrAlreadyFinalized)
}

func Test_Renew_Error_WhenLoanUnknown(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)

	// act
	_, err := eng.Renew(context.Background(), uuid.New())

	// assert
	assert.ErrorIs(t, err, circulation.ErrLoanNotFound)
}
