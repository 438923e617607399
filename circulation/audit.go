package circulation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// AuditAction classifies what happened to the audited entity.
type AuditAction string

const (
	AuditActionCreate AuditAction = "Create"
	AuditActionUpdate AuditAction = "Update"
)

var (
	// ErrEmptyEntityType is returned when an audit record names no entity type.
	ErrEmptyEntityType = errors.New("entity type must not be empty")

	// ErrInvalidStateJSON is returned when an audit state snapshot is not valid JSON.
	ErrInvalidStateJSON = errors.New("state json is not valid")
)

// AuditRecord is one immutable event describing a committed mutation. It is
// written to the outbox within the business transaction and delivered to the
// AuditSink afterwards, so sink unavailability never rolls back a commit.
//
// BeforeState is empty for AuditActionCreate. While its properties are
// exported, it should only be constructed with BuildAuditRecord.
type AuditRecord struct {
	ID          uuid.UUID
	EntityType  string
	EntityID    uuid.UUID
	Action      AuditAction
	BeforeState json.RawMessage
	AfterState  json.RawMessage
	ActorID     uuid.UUID
	OccurredAt  time.Time
}

// BuildAuditRecord is a factory method for AuditRecord.
//
// It validates the state snapshots; beforeState may be nil for creates.
func BuildAuditRecord(
	entityType string,
	entityID uuid.UUID,
	action AuditAction,
	beforeState json.RawMessage,
	afterState json.RawMessage,
	actorID uuid.UUID,
	occurredAt time.Time,
) (AuditRecord, error) {

	if entityType == "" {
		return AuditRecord{}, ErrEmptyEntityType
	}

	if beforeState != nil && !jsoniter.ConfigFastest.Valid(beforeState) {
		return AuditRecord{}, ErrInvalidStateJSON
	}

	if !jsoniter.ConfigFastest.Valid(afterState) {
		return AuditRecord{}, ErrInvalidStateJSON
	}

	return AuditRecord{
		ID:          uuid.New(),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		BeforeState: beforeState,
		AfterState:  afterState,
		ActorID:     actorID,
		OccurredAt:  ToTimestamp(occurredAt),
	}, nil
}

// AuditSink receives committed audit records. Delivery is at-least-once:
// a sink must tolerate redelivery of records it has already seen.
type AuditSink interface {
	Deliver(ctx context.Context, records []AuditRecord) error
}
