package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
)

const operationOpenLoanForCopy = "OpenLoanForCopy"

// OpenLoanForCopy returns the open loan referencing a copy, if any. The desk
// uses this to resolve a scanned copy to the loan being returned.
func (e *Engine) OpenLoanForCopy(ctx context.Context, copyID uuid.UUID) (circulation.Loan, bool, error) {
	if copyID == uuid.Nil {
		return circulation.Loan{}, false, circulation.ErrNilID
	}

	var (
		loan  circulation.Loan
		found bool
	)

	err := e.execute(ctx, operationOpenLoanForCopy, func(tx circulation.Transaction) error {
		if _, getErr := tx.GetCopy(copyID); getErr != nil {
			return getErr
		}

		var lookupErr error
		loan, found, lookupErr = tx.OpenLoanByCopy(copyID)

		return lookupErr
	})

	if err != nil {
		return circulation.Loan{}, false, err
	}

	return loan, found, nil
}
