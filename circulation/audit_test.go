package circulation_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/openlibra/circulation-engine/circulation"
)

func Test_BuildAuditRecord_Success_ForCreateWithoutBeforeState(t *testing.T) {
	// arrange
	entityID := uuid.New()
	actorID := uuid.New()
	occurredAt := time.Date(2026, 5, 1, 9, 30, 0, 123456789, time.UTC)

	// act
	record, err := circulation.BuildAuditRecord(
		"loan", entityID, circulation.AuditActionCreate,
		nil, []byte(`{"state":"Active"}`), actorID, occurredAt,
	)

	// assert
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, "loan", record.EntityType)
	assert.Equal(t, entityID, record.EntityID)
	assert.Nil(t, record.BeforeState)
	assert.Equal(t, occurredAt.Truncate(time.Microsecond), record.OccurredAt)
}

func Test_BuildAuditRecord_Error_WhenEntityTypeEmpty(t *testing.T) {
	// act
	_, err := circulation.BuildAuditRecord(
		"", uuid.New(), circulation.AuditActionCreate,
		nil, []byte(`{}`), uuid.New(), time.Now(),
	)

	// assert
	assert.ErrorIs(t, err, circulation.ErrEmptyEntityType)
}

func Test_BuildAuditRecord_Error_WhenAfterStateNotJSON(t *testing.T) {
	// act
	_, err := circulation.BuildAuditRecord(
		"loan", uuid.New(), circulation.AuditActionCreate,
		nil, []byte(`not json`), uuid.New(), time.Now(),
	)

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvalidStateJSON)
}

func Test_BuildAuditRecord_Error_WhenBeforeStateNotJSON(t *testing.T) {
	// act
	_, err := circulation.BuildAuditRecord(
		"loan", uuid.New(), circulation.AuditActionUpdate,
		[]byte(`{broken`), []byte(`{}`), uuid.New(), time.Now(),
	)

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvalidStateJSON)
}
