package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/core"
)

const operationApplyPayment = "ApplyPayment"

// ApplyPayment records a settlement step against a fine.
//
// The remaining balance is always derived as the fine amount minus the sum
// of prior payments, never read from a stored field. A payment exceeding the
// remaining balance fails with ErrOverPayment; the payment that clears the
// balance flips the fine to Paid in the same transaction. Concurrent
// payments against one fine serialize through the storage contract, so the
// balance check cannot be lost.
func (e *Engine) ApplyPayment(
	ctx context.Context,
	fineID uuid.UUID,
	amount decimal.Decimal,
	method string,
) (circulation.Fine, error) {

	if fineID == uuid.Nil {
		return circulation.Fine{}, circulation.ErrNilID
	}

	var settled circulation.Fine

	err := e.execute(ctx, operationApplyPayment, func(tx circulation.Transaction) error {
		now := e.now()

		fine, err := tx.GetFine(fineID)
		if err != nil {
			return err
		}

		paidTotal, err := tx.PaymentsTotalByFine(fineID)
		if err != nil {
			return err
		}

		remaining := core.RemainingBalance(fine.Amount, paidTotal)

		if err = core.DecidePayment(amount, remaining); err != nil {
			return err
		}

		payment := circulation.Payment{
			ID:     uuid.New(),
			FineID: fineID,
			Amount: amount,
			Method: method,
			PaidAt: now,
		}

		if err = tx.InsertPayment(payment); err != nil {
			return err
		}

		if err = auditCreate(tx, entityTypePayment, payment.ID, payment, fine.PatronID, now); err != nil {
			return err
		}

		if core.SettlesFine(amount, remaining) {
			fineBefore := fine
			fine.State = circulation.FinePaid

			if err = tx.UpdateFine(fine); err != nil {
				return err
			}

			if err = auditUpdate(tx, entityTypeFine, fine.ID, fineBefore, fine, fine.PatronID, now); err != nil {
				return err
			}
		}

		settled = fine

		return nil
	})

	if err != nil {
		return circulation.Fine{}, err
	}

	return settled, nil
}

// outstandingBalance sums the remaining balances of a patron's pending fines
// inside the given transaction.
func outstandingBalance(tx circulation.Transaction, patronID uuid.UUID) (decimal.Decimal, error) {
	fines, err := tx.PendingFinesByPatron(patronID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero

	for _, fine := range fines {
		paidTotal, err := tx.PaymentsTotalByFine(fine.ID)
		if err != nil {
			return decimal.Zero, err
		}

		balance = balance.Add(core.RemainingBalance(fine.Amount, paidTotal))
	}

	return balance, nil
}
