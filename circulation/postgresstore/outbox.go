package postgresstore

import (
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/postgresstore/internal/adapters"
)

func buildPendingAuditQuery(limit int) (string, error) {
	sqlQuery, _, buildErr := dialect.From(tableAuditOutbox).
		Select(
			goqu.L("id::text"), goqu.C("entity_type"), goqu.L("entity_id::text"),
			goqu.C("action"), goqu.L("before_state::text"), goqu.L("after_state::text"),
			goqu.L("actor_id::text"), goqu.C("occurred_at"),
		).
		Where(goqu.C("delivered_at").IsNull()).
		Order(goqu.C("seq").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if buildErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return sqlQuery, nil
}

func buildMarkDeliveredQuery(ids []uuid.UUID) (string, error) {
	idExpressions := make([]any, len(ids))
	for i, id := range ids {
		idExpressions[i] = uid(id)
	}

	sqlQuery, _, buildErr := dialect.Update(tableAuditOutbox).
		Set(goqu.Record{"delivered_at": goqu.L("now()")}).
		Where(goqu.C("id").In(idExpressions...), goqu.C("delivered_at").IsNull()).
		ToSQL()
	if buildErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return sqlQuery, nil
}

func scanAuditRecords(rows adapters.DBRows) ([]circulation.AuditRecord, error) {
	var records []circulation.AuditRecord

	for rows.Next() {
		var (
			idText      string
			entityText  string
			action      string
			beforeState sql.NullString
			afterState  string
			actorText   string
			record      circulation.AuditRecord
		)

		scanErr := rows.Scan(
			&idText, &record.EntityType, &entityText,
			&action, &beforeState, &afterState,
			&actorText, &record.OccurredAt,
		)
		if scanErr != nil {
			return nil, errors.Join(ErrScanningRowFailed, scanErr)
		}

		ids, parseErr := parseUUIDs(idText, entityText, actorText)
		if parseErr != nil {
			return nil, parseErr
		}

		record.ID, record.EntityID, record.ActorID = ids[0], ids[1], ids[2]
		record.Action = circulation.AuditAction(action)
		record.AfterState = []byte(afterState)

		if beforeState.Valid {
			record.BeforeState = []byte(beforeState.String)
		}

		records = append(records, record)
	}

	return records, nil
}
