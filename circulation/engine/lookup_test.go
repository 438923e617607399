package engine_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/engine"
	"github.com/openlibra/circulation-engine/circulation/memstore"
)

func Test_OpenLoanForCopy_FindsOpenLoan(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	// act
	found, ok, err := eng.OpenLoanForCopy(context.Background(), copyIDs[0])

	// assert
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, loan.ID, found.ID)
}

func Test_OpenLoanForCopy_NotFound_AfterReturn(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)
	_, copyIDs := givenTitleWithCopies(t, eng, 1)
	loan := givenOpenLoan(t, eng, newPatron(), copyIDs[0])

	_, err := eng.Return(context.Background(), loan.ID, clock.Now())
	require.NoError(t, err)

	// act
	_, ok, err := eng.OpenLoanForCopy(context.Background(), copyIDs[0])

	// assert
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_OpenLoanForCopy_Error_WhenCopyUnknown(t *testing.T) {
	// arrange
	clock := newTestClock()
	eng, _ := newTestEngine(t, clock)

	// act
	_, _, err := eng.OpenLoanForCopy(context.Background(), uuid.New())

	// assert
	assert.ErrorIs(t, err, circulation.ErrCopyNotFound)
}

func Test_OpenLoanForCopy_RetriesSerializationConflict(t *testing.T) {
	// arrange - seed a loan, then look it up through a storage that
	// aborts the first transaction
	clock := newTestClock()
	store := memstore.NewStore()
	seeder, err := engine.NewEngine(store, engine.WithClock(clock.Now))
	require.NoError(t, err)

	_, copyIDs := givenTitleWithCopies(t, seeder, 1)
	loan := givenOpenLoan(t, seeder, newPatron(), copyIDs[0])

	flaky := &conflictingStorage{Storage: store, conflicts: 1}
	eng, err := engine.NewEngine(flaky, engine.WithClock(clock.Now))
	require.NoError(t, err)

	// act
	found, ok, err := eng.OpenLoanForCopy(context.Background(), copyIDs[0])

	// assert
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, loan.ID, found.ID)
}
