package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/openlibra/circulation-engine/circulation"
)

const (
	entityTypeTitle       = "Title"
	entityTypeCopy        = "Copy"
	entityTypeLoan        = "Loan"
	entityTypeReservation = "Reservation"
	entityTypeFine        = "Fine"
	entityTypePayment     = "Payment"
	entityTypeSanction    = "Sanction"
)

// ErrMarshalingAuditStateFailed is returned when an entity snapshot cannot be serialized.
var ErrMarshalingAuditStateFailed = errors.New("marshaling audit state failed")

// auditCreate stages a creation audit record in the transaction's outbox.
func auditCreate(
	tx circulation.Transaction,
	entityType string,
	entityID uuid.UUID,
	after any,
	actorID uuid.UUID,
	at time.Time,
) error {

	return appendAudit(tx, entityType, entityID, circulation.AuditActionCreate, nil, after, actorID, at)
}

// auditUpdate stages an update audit record with before and after snapshots.
func auditUpdate(
	tx circulation.Transaction,
	entityType string,
	entityID uuid.UUID,
	before any,
	after any,
	actorID uuid.UUID,
	at time.Time,
) error {

	return appendAudit(tx, entityType, entityID, circulation.AuditActionUpdate, before, after, actorID, at)
}

func appendAudit(
	tx circulation.Transaction,
	entityType string,
	entityID uuid.UUID,
	action circulation.AuditAction,
	before any,
	after any,
	actorID uuid.UUID,
	at time.Time,
) error {

	var beforeJSON []byte

	if before != nil {
		marshaled, marshalErr := jsoniter.ConfigFastest.Marshal(before)
		if marshalErr != nil {
			return errors.Join(ErrMarshalingAuditStateFailed, marshalErr)
		}

		beforeJSON = marshaled
	}

	afterJSON, marshalErr := jsoniter.ConfigFastest.Marshal(after)
	if marshalErr != nil {
		return errors.Join(ErrMarshalingAuditStateFailed, marshalErr)
	}

	record, buildErr := circulation.BuildAuditRecord(entityType, entityID, action, beforeJSON, afterJSON, actorID, at)
	if buildErr != nil {
		return buildErr
	}

	return tx.AppendAudit(record)
}
