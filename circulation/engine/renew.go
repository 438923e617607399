package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/core"
)

const operationRenew = "Renew"

// Renew extends an open loan by the default loan period.
//
// Preconditions: the loan is Active (an overdue loan cannot be renewed), the
// renewal limit has not been reached, and no reservation queues for the
// title. The due time extends from the current due time, not from now, so
// renewing early gives away no loan days.
func (e *Engine) Renew(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	if loanID == uuid.Nil {
		return circulation.Loan{}, circulation.ErrNilID
	}

	var renewed circulation.Loan

	err := e.execute(ctx, operationRenew, func(tx circulation.Transaction) error {
		now := e.now()

		loan, err := tx.GetLoan(loanID)
		if err != nil {
			return err
		}

		queue, err := tx.PendingReservationsByTitle(loan.TitleID)
		if err != nil {
			return err
		}

		state := core.RenewalState{
			LoanState:     loan.StateAt(now),
			RenewalCount:  loan.RenewalCount,
			QueueNotEmpty: len(queue) > 0,
		}

		if err = core.DecideRenewal(state, e.config.MaxRenewals); err != nil {
			return err
		}

		loanBefore := loan
		loan.DueAt = loan.DueAt.Add(e.config.LoanPeriodDefault)
		loan.RenewalCount++

		if err = tx.UpdateLoan(loan); err != nil {
			return err
		}

		if err = auditUpdate(tx, entityTypeLoan, loan.ID, loanBefore, loan, loan.PatronID, now); err != nil {
			return err
		}

		renewed = loan

		return nil
	})

	if err != nil {
		return circulation.Loan{}, err
	}

	return renewed, nil
}
