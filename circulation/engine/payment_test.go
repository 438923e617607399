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
	"github.com/openlibra/circulation-engine/circulation/engine"
)

const paymentMethodCard = "card"

func givenLateFine(t *testing.T, eng *engine.Engine, clock *testClock, daysLate int) circulation.Fine {
	t.Helper()

	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	returnedAt := loan.DueAt.Add(time.Duration(daysLate) * 24 * time.Hour)
	clock.Advance(returnedAt.Sub(clock.Now()))

	receipt, err := eng.Return(context.Background(), loan.ID, returnedAt)
	require.NoError(t, err)
	require.NotNil(t, receipt.Fine)

	return *receipt.Fine
}

func Test_ApplyPayment_KeepsFinePending_WhenPartial(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	fine := givenLateFine(t, eng, clock, 3) // 1.50 at the default rate

	// act
	after, err := eng.ApplyPayment(context.Background(), fine.ID, decimal.RequireFromString("1.00"), paymentMethodCard)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.FinePending, after.State)

	balance, err := eng.OutstandingBalance(context.Background(), fine.PatronID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("0.50")), "got %s", balance)
}

func Test_ApplyPayment_SettlesFine_WhenPaymentClearsBalance(t *testing.T) {
	// arrange
	clock := newTestClock()
	config := circulation.DefaultConfig()
	config.DailyFineRate = decimal.RequireFromString("50.00")
	config.BlockThresholdUnpaidFines = decimal.RequireFromString("1000.00")
	eng, _ := newTestEngine(t, clock, engine.WithConfig(config))

	fine := givenLateFine(t, eng, clock, 3)
	require.True(t, fine.Amount.Equal(decimal.RequireFromString("150.00")), "got %s", fine.Amount)

	// act
	after, err := eng.ApplyPayment(context.Background(), fine.ID, decimal.RequireFromString("150.00"), paymentMethodCard)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.FinePaid, after.State)

	balance, err := eng.OutstandingBalance(context.Background(), fine.PatronID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "got %s", balance)
}

func Test_ApplyPayment_SettlesFine_InSteps(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	fine := givenLateFine(t, eng, clock, 3) // 1.50

	_, err := eng.ApplyPayment(context.Background(), fine.ID, decimal.RequireFromString("1.00"), paymentMethodCard)
	require.NoError(t, err)

	// act - the second payment clears the derived remainder
	after, err := eng.ApplyPayment(context.Background(), fine.ID, decimal.RequireFromString("0.50"), paymentMethodCard)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.FinePaid, after.State)
}

func Test_ApplyPayment_Error_WhenPaymentExceedsRemaining(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	fine := givenLateFine(t, eng, clock, 3) // 1.50

	// act
	_, err := eng.ApplyPayment(context.Background(), fine.ID, decimal.RequireFromString("2.00"), paymentMethodCard)

	// assert
	assert.ErrorIs(t, err, circulation.ErrOverPayment)

	// the rejected payment must not change the balance
	balance, balanceErr := eng.OutstandingBalance(context.Background(), fine.PatronID)
	require.NoError(t, balanceErr)
	assert.True(t, balance.Equal(decimal.RequireFromString("1.50")), "got %s", balance)
}

func Test_ApplyPayment_Error_WhenAmountNotPositive(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	fine := givenLateFine(t, eng, clock, 3)

	// act
	_, err := eng.ApplyPayment(context.Background(), fine.ID, decimal.Zero, paymentMethodCard)

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvalidAmount)
}

func Test_ApplyPayment_Error_WhenFineUnknown(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)

	// act
	_, err := eng.ApplyPayment(context.Background(), uuid.New(), decimal.RequireFromString("1.00"), paymentMethodCard)

	// assert
	assert.ErrorIs(t, err, circulation.ErrFineNotFound)
}

func Test_ApplyPayment_UnblocksPatron_WhenBalanceDropsBelowThreshold(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	fine := givenLateFine(t, eng, clock, 20) // 10.00 meets the default threshold

	blocked, err := eng.IsBlocked(context.Background(), fine.PatronID, clock.Now())
	require.NoError(t, err)
	require.True(t, blocked)

	// act
	_, err = eng.ApplyPayment(context.Background(), fine.ID, decimal.RequireFromString("0.50"), paymentMethodCard)

	// assert
	require.NoError(t, err)

	blocked, err = eng.IsBlocked(context.Background(), fine.PatronID, clock.Now())
	require.NoError(t, err)
	assert.False(t, blocked)
}
