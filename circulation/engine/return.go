package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/core"
)

const (
	operationReturn = "Return"

	fineReasonLateReturn = "late return"
)

// ReturnReceipt is the outcome of a return: the finalized loan and the fine
// generated for it, if the return was late.
type ReturnReceipt struct {
	Loan circulation.Loan
	Fine *circulation.Fine
}

// Return finalizes a loan.
//
// Atomically: the loan is finalized with the given return time, the late
// penalty is computed and a Pending fine created if it is positive, the copy
// is released back to the reservation queue or to general availability, and
// the queue head - if any - receives a hold on the copy.
//
// A second return of the same loan fails with ErrAlreadyFinalized rather
// than silently succeeding, so a duplicate request can never generate a
// second fine.
//
// A zero returnedAt uses the engine clock.
func (e *Engine) Return(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) (ReturnReceipt, error) {
	if loanID == uuid.Nil {
		return ReturnReceipt{}, circulation.ErrNilID
	}

	if returnedAt.IsZero() {
		returnedAt = e.now()
	}

	returnedAt = circulation.ToTimestamp(returnedAt)

	var receipt ReturnReceipt

	err := e.execute(ctx, operationReturn, func(tx circulation.Transaction) error {
		loan, err := tx.GetLoan(loanID)
		if err != nil {
			return err
		}

		if !loan.IsOpen() {
			return circulation.ErrAlreadyFinalized
		}

		loanBefore := loan
		loan.State = circulation.LoanFinalized
		loan.ReturnedAt = &returnedAt

		if err = tx.UpdateLoan(loan); err != nil {
			return err
		}

		if err = auditUpdate(tx, entityTypeLoan, loan.ID, loanBefore, loan, loan.PatronID, returnedAt); err != nil {
			return err
		}

		fine, err := e.generateFine(tx, loan, returnedAt)
		if err != nil {
			return err
		}

		cpy, err := tx.GetCopy(loan.CopyID)
		if err != nil {
			return err
		}

		if cpy.State != circulation.CopyOnLoan {
			return circulation.ErrInvalidCopyState
		}

		if err = e.placeCopy(tx, cpy, loan.PatronID, returnedAt); err != nil {
			return err
		}

		receipt = ReturnReceipt{Loan: loan, Fine: fine}

		return nil
	})

	if err != nil {
		return ReturnReceipt{}, err
	}

	return receipt, nil
}

// generateFine computes the late penalty and creates the loan's fine.
// At most one fine ever exists per loan, and only for a positive amount.
func (e *Engine) generateFine(
	tx circulation.Transaction,
	loan circulation.Loan,
	returnedAt time.Time,
) (*circulation.Fine, error) {

	amount := core.ComputeFine(loan.DueAt, returnedAt, e.config.DailyFineRate)
	if !amount.IsPositive() {
		return nil, nil
	}

	if _, exists, err := tx.FineByLoan(loan.ID); err != nil {
		return nil, err
	} else if exists {
		// The loan was open, so no fine can exist yet; a hit here means the
		// ledgers disagree and the transaction must not commit.
		return nil, circulation.ErrDuplicateEntity
	}

	fine := circulation.Fine{
		ID:          uuid.New(),
		LoanID:      loan.ID,
		PatronID:    loan.PatronID,
		Amount:      amount,
		Reason:      fineReasonLateReturn,
		State:       circulation.FinePending,
		GeneratedAt: returnedAt,
	}

	if err := tx.InsertFine(fine); err != nil {
		return nil, err
	}

	if err := auditCreate(tx, entityTypeFine, fine.ID, fine, loan.PatronID, returnedAt); err != nil {
		return nil, err
	}

	return &fine, nil
}

// placeCopy hands a freed copy to the reservation queue head, or returns it
// to general availability when nobody waits. Running inside the releasing
// transaction means a freed copy is never visible as Available before the
// head reservation had its chance to claim it.
func (e *Engine) placeCopy(
	tx circulation.Transaction,
	cpy circulation.Copy,
	actorID uuid.UUID,
	now time.Time,
) error {

	queue, err := tx.PendingReservationsByTitle(cpy.TitleID)
	if err != nil {
		return err
	}

	head, found := core.QueueHead(core.DropExpired(queue, now))
	if !found {
		return e.placeCopyAvailable(tx, cpy, actorID, now)
	}

	cpyBefore := cpy
	cpy.State = circulation.CopyReserved

	if err = tx.UpdateCopy(cpy); err != nil {
		return err
	}

	if err = auditUpdate(tx, entityTypeCopy, cpy.ID, cpyBefore, cpy, actorID, now); err != nil {
		return err
	}

	return e.grantHold(tx, head, cpy.ID, actorID, now)
}

// grantHold fulfills a reservation with a hold on the given copy. The hold
// waits for pickup until the reservation expiry elapses.
func (e *Engine) grantHold(
	tx circulation.Transaction,
	reservation circulation.Reservation,
	copyID uuid.UUID,
	actorID uuid.UUID,
	now time.Time,
) error {

	before := reservation
	reservation.State = circulation.ReservationFulfilled
	reservation.HeldCopyID = &copyID
	reservation.ExpiresAt = now.Add(e.config.ReservationExpiry)

	if err := tx.UpdateReservation(reservation); err != nil {
		return err
	}

	return auditUpdate(tx, entityTypeReservation, reservation.ID, before, reservation, actorID, now)
}

// placeCopyAvailable sets a freed copy Available and increments the counter.
func (e *Engine) placeCopyAvailable(
	tx circulation.Transaction,
	cpy circulation.Copy,
	actorID uuid.UUID,
	now time.Time,
) error {

	cpyBefore := cpy
	cpy.State = circulation.CopyAvailable

	if err := tx.UpdateCopy(cpy); err != nil {
		return err
	}

	if err := auditUpdate(tx, entityTypeCopy, cpy.ID, cpyBefore, cpy, actorID, now); err != nil {
		return err
	}

	return e.adjustAvailable(tx, cpy.TitleID, +1, actorID, now)
}
