package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlibra/circulation-engine/circulation"
)

const (
	operationImposeSanction     = "ImposeSanction"
	operationLiftSanction       = "LiftSanction"
	operationIsBlocked          = "IsBlocked"
	operationOutstandingBalance = "OutstandingBalance"
)

// ImposeSanction records a manual, time-bounded borrowing restriction.
func (e *Engine) ImposeSanction(
	ctx context.Context,
	patronID uuid.UUID,
	sanctionType string,
	reason string,
	startsAt time.Time,
	endsAt time.Time,
) (circulation.Sanction, error) {

	if patronID == uuid.Nil {
		return circulation.Sanction{}, circulation.ErrNilID
	}

	if !endsAt.After(startsAt) {
		return circulation.Sanction{}, circulation.ErrInvalidPeriod
	}

	sanction := circulation.Sanction{
		ID:       uuid.New(),
		PatronID: patronID,
		Type:     sanctionType,
		Reason:   reason,
		StartsAt: circulation.ToTimestamp(startsAt),
		EndsAt:   circulation.ToTimestamp(endsAt),
		State:    circulation.SanctionActive,
	}

	err := e.execute(ctx, operationImposeSanction, func(tx circulation.Transaction) error {
		if err := tx.InsertSanction(sanction); err != nil {
			return err
		}

		return auditCreate(tx, entityTypeSanction, sanction.ID, sanction, SystemActorID, e.now())
	})

	if err != nil {
		return circulation.Sanction{}, err
	}

	return sanction, nil
}

// LiftSanction ends an active sanction early.
func (e *Engine) LiftSanction(ctx context.Context, sanctionID uuid.UUID) error {
	if sanctionID == uuid.Nil {
		return circulation.ErrNilID
	}

	return e.execute(ctx, operationLiftSanction, func(tx circulation.Transaction) error {
		now := e.now()

		sanction, err := tx.GetSanction(sanctionID)
		if err != nil {
			return err
		}

		if sanction.State != circulation.SanctionActive {
			return circulation.ErrSanctionNotActive
		}

		before := sanction
		sanction.State = circulation.SanctionLifted

		if err = tx.UpdateSanction(sanction); err != nil {
			return err
		}

		return auditUpdate(tx, entityTypeSanction, sanction.ID, before, sanction, SystemActorID, now)
	})
}

// IsBlocked derives the patron's borrowing eligibility at the given time: a
// patron is blocked while a sanction is active or while the unpaid fine
// balance has reached the configured threshold.
func (e *Engine) IsBlocked(ctx context.Context, patronID uuid.UUID, at time.Time) (bool, error) {
	if patronID == uuid.Nil {
		return false, circulation.ErrNilID
	}

	blocked := false

	err := e.execute(ctx, operationIsBlocked, func(tx circulation.Transaction) error {
		sanctions, err := tx.ActiveSanctionsByPatron(patronID, circulation.ToTimestamp(at))
		if err != nil {
			return err
		}

		if len(sanctions) > 0 {
			blocked = true
			return nil
		}

		balance, err := outstandingBalance(tx, patronID)
		if err != nil {
			return err
		}

		blocked = balance.GreaterThanOrEqual(e.config.BlockThresholdUnpaidFines)

		return nil
	})

	if err != nil {
		return false, err
	}

	return blocked, nil
}

// OutstandingBalance returns the sum of the remaining balances of the
// patron's pending fines.
func (e *Engine) OutstandingBalance(ctx context.Context, patronID uuid.UUID) (decimal.Decimal, error) {
	if patronID == uuid.Nil {
		return decimal.Zero, circulation.ErrNilID
	}

	balance := decimal.Zero

	err := e.execute(ctx, operationOutstandingBalance, func(tx circulation.Transaction) error {
		var balanceErr error
		balance, balanceErr = outstandingBalance(tx, patronID)

		return balanceErr
	})

	if err != nil {
		return decimal.Zero, err
	}

	return balance, nil
}
