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

func Test_Reserve_Success_CreatesPendingReservation(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	titleID, _ := givenTitleWithCopies(t, eng, 1)
	patronID := newPatron()

	// act
	reservation, err := eng.Reserve(context.Background(), patronID, titleID, 2)

	// assert
	require.NoError(t, err)
	assert.Equal(t, patronID, reservation.PatronID)
	assert.Equal(t, titleID, reservation.TitleID)
	assert.Equal(t, 2, reservation.Priority)
	assert.Equal(t, circulation.ReservationPending, reservation.State)
	assert.Equal(t, circulation.ToTimestamp(clock.Now()).Add(eng.Config().ReservationExpiry), reservation.ExpiresAt)
}

func Test_Reserve_Error_WhenPatronAlreadyQueuesForTitle(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	titleID, _ := givenTitleWithCopies(t, eng, 1)
	patronID := newPatron()

	_, err := eng.Reserve(context.Background(), patronID, titleID, 0)
	require.NoError(t, err)

	// act
	_, err = eng.Reserve(context.Background(), patronID, titleID, 0)

	// assert
	assert.ErrorIs(t, err, circulation.ErrDuplicateReservation)
}

func Test_Reserve_Error_WhenTitleUnknown(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)

	// act
	_, err := eng.Reserve(context.Background(), newPatron(), uuid.New(), 0)

	// assert
	assert.ErrorIs(t, err, circulation.ErrTitleNotFound)
}

func Test_Return_ServesHigherPriorityReservation_DespiteLaterRequest(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	lowPriority, err := eng.Reserve(context.Background(), newPatron(), titleID, 1)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	highPriority, err := eng.Reserve(context.Background(), newPatron(), titleID, 2)
	require.NoError(t, err)

	// act
	_, err = eng.Return(context.Background(), loan.ID, clock.Now())

	// assert
	require.NoError(t, err)
	assertReservationState(t, store, highPriority.ID, circulation.ReservationFulfilled)
	assertReservationState(t, store, lowPriority.ID, circulation.ReservationPending)
}

func Test_Return_ServesEarlierReservation_WhenPrioritiesEqual(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	first, err := eng.Reserve(context.Background(), newPatron(), titleID, 1)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	second, err := eng.Reserve(context.Background(), newPatron(), titleID, 1)
	require.NoError(t, err)

	// act
	_, err = eng.Return(context.Background(), loan.ID, clock.Now())

	// assert
	require.NoError(t, err)
	assertReservationState(t, store, first.ID, circulation.ReservationFulfilled)
	assertReservationState(t, store, second.ID, circulation.ReservationPending)
}

func Test_CancelReservation_Success_ForOwnPendingReservation(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, _ := givenTitleWithCopies(t, eng, 1)
	patronID := newPatron()

	reservation, err := eng.Reserve(context.Background(), patronID, titleID, 0)
	require.NoError(t, err)

	// act
	err = eng.CancelReservation(context.Background(), reservation.ID, patronID)

	// assert
	require.NoError(t, err)
	assertReservationState(t, store, reservation.ID, circulation.ReservationCancelled)
}

func Test_CancelReservation_Error_WhenNotOwner(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	titleID, _ := givenTitleWithCopies(t, eng, 1)

	reservation, err := eng.Reserve(context.Background(), newPatron(), titleID, 0)
	require.NoError(t, err)

	// act
	err = eng.CancelReservation(context.Background(), reservation.ID, newPatron())

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotReservationOwner)
}

func Test_CancelReservation_Error_WhenAlreadyFulfilled(t *testing.T) {
	// arrange - fulfillment committed before the cancellation arrives
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])
	patronID := newPatron()

	reservation, err := eng.Reserve(context.Background(), patronID, titleID, 0)
	require.NoError(t, err)

	_, err = eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)

	// act
	err = eng.CancelReservation(context.Background(), reservation.ID, patronID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrReservationNotPending)
}

func Test_ExpireReservations_ExpiresPendingPastExpiry(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, _ := givenTitleWithCopies(t, eng, 1)

	reservation, err := eng.Reserve(context.Background(), newPatron(), titleID, 0)
	require.NoError(t, err)

	clock.Advance(eng.Config().ReservationExpiry + time.Hour)

	// act
	expired, err := eng.ExpireReservations(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assertReservationState(t, store, reservation.ID, circulation.ReservationExpired)
}

func Test_ExpireReservations_FreesUnclaimedHold(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	reservation, err := eng.Reserve(context.Background(), newPatron(), titleID, 0)
	require.NoError(t, err)

	_, err = eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyReserved)

	clock.Advance(eng.Config().ReservationExpiry + time.Hour)

	// act
	expired, err := eng.ExpireReservations(context.Background())

	// assert - the hold expires and the copy returns to availability
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assertReservationState(t, store, reservation.ID, circulation.ReservationExpired)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyAvailable)
	assertAvailableInvariant(t, store, titleID)
}

func Test_ExpireReservations_HandsFreedHoldToNextWaiter(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	sleeper, err := eng.Reserve(context.Background(), newPatron(), titleID, 2)
	require.NoError(t, err)

	_, err = eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)

	clock.Advance(eng.Config().ReservationExpiry - time.Hour)

	waiter, err := eng.Reserve(context.Background(), newPatron(), titleID, 1)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	// act - the sleeper's hold lapsed, the waiting reservation takes over
	expired, err := eng.ExpireReservations(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assertReservationState(t, store, sleeper.ID, circulation.ReservationExpired)
	assertReservationState(t, store, waiter.ID, circulation.ReservationFulfilled)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyReserved)
}

func Test_ExpireReservations_Idempotent_WhenNothingStale(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	titleID, _ := givenTitleWithCopies(t, eng, 1)

	_, err := eng.Reserve(context.Background(), newPatron(), titleID, 0)
	require.NoError(t, err)

	clock.Advance(eng.Config().ReservationExpiry + time.Hour)

	first, err := eng.ExpireReservations(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first)

	// act
	second, err := eng.ExpireReservations(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func Test_AddCopy_GrantsHoldToQueueHead_WhenReservationsWait(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, _ := givenTitleWithCopies(t, eng, 0)

	reservation, err := eng.Reserve(context.Background(), newPatron(), titleID, 0)
	require.NoError(t, err)

	// act
	cpy, err := eng.AddCopy(context.Background(), titleID)

	// assert
	require.NoError(t, err)
	assertCopyState(t, store, titleID, cpy.ID, circulation.CopyReserved)
	assertReservationState(t, store, reservation.ID, circulation.ReservationFulfilled)
	assertAvailableInvariant(t, store, titleID)
}

func Test_ExpireReservations_ExpiresFreedHoldAndLapsedWaiterTogether(t *testing.T) {
	// arrange - one copy on loan, a high-priority and a low-priority waiter
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	holder, err := eng.Reserve(context.Background(), newPatron(), titleID, 2)
	require.NoError(t, err)

	waiter, err := eng.Reserve(context.Background(), newPatron(), titleID, 1)
	require.NoError(t, err)

	_, err = eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)
	assertReservationState(t, store, holder.ID, circulation.ReservationFulfilled)

	clock.Advance(eng.Config().ReservationExpiry + time.Hour)

	// act - the hold and the remaining waiter lapsed in the same sweep
	expired, err := eng.ExpireReservations(context.Background())

	// assert - the freed copy must not be granted to the lapsed waiter
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assertReservationState(t, store, holder.ID, circulation.ReservationExpired)
	assertReservationState(t, store, waiter.ID, circulation.ReservationExpired)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyAvailable)
	assertAvailableInvariant(t, store, titleID)
}

func Test_Return_SkipsLapsedWaiter_CopyBecomesAvailable(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, store := newTestEngine(t, clock)
	titleID, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	waiter, err := eng.Reserve(context.Background(), newPatron(), titleID, 0)
	require.NoError(t, err)

	clock.Advance(eng.Config().ReservationExpiry + time.Hour)

	// act
	_, err = eng.Return(context.Background(), loan.ID, clock.Now())

	// assert - the lapsed request stays pending for the sweep, without a hold
	require.NoError(t, err)
	assertReservationState(t, store, waiter.ID, circulation.ReservationPending)
	assertCopyState(t, store, titleID, copyIDs[0], circulation.CopyAvailable)
	assertAvailableInvariant(t, store, titleID)
}
