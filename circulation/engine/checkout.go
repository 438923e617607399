package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/core"
)

const operationCheckout = "Checkout"

// Checkout lends a copy to a patron.
//
// Preconditions: the patron is active and not blocked (no active sanction,
// unpaid fines below the block threshold), the patron is below the open loan
// limit, and the copy is Available - or Reserved and held for exactly this
// patron, which picks up the hold.
//
// A loanPeriod of zero uses Config.LoanPeriodDefault.
//
// The copy transition, the availability counter and the loan creation commit
// as one unit: two concurrent checkouts of the same copy yield exactly one
// success and one ErrCopyUnavailable.
func (e *Engine) Checkout(
	ctx context.Context,
	patronID uuid.UUID,
	copyID uuid.UUID,
	loanPeriod time.Duration,
) (circulation.Loan, error) {

	if patronID == uuid.Nil || copyID == uuid.Nil {
		return circulation.Loan{}, circulation.ErrNilID
	}

	if loanPeriod < 0 {
		return circulation.Loan{}, circulation.ErrInvalidPeriod
	}

	if loanPeriod == 0 {
		loanPeriod = e.config.LoanPeriodDefault
	}

	if err := e.requirePatronActive(ctx, patronID); err != nil {
		return circulation.Loan{}, err
	}

	var loan circulation.Loan

	err := e.execute(ctx, operationCheckout, func(tx circulation.Transaction) error {
		now := e.now()

		cpy, err := tx.GetCopy(copyID)
		if err != nil {
			return err
		}

		state, hold, err := e.projectCheckoutState(tx, cpy, patronID, now)
		if err != nil {
			return err
		}

		if err = core.DecideCheckout(state, e.config.BlockThresholdUnpaidFines, e.config.MaxLoansPerPatron); err != nil {
			return err
		}

		if err = e.takeCopy(tx, cpy, hold, patronID, now); err != nil {
			return err
		}

		loan = circulation.Loan{
			ID:        uuid.New(),
			PatronID:  patronID,
			CopyID:    cpy.ID,
			TitleID:   cpy.TitleID,
			StartedAt: now,
			DueAt:     now.Add(loanPeriod),
			State:     circulation.LoanActive,
		}

		if err = tx.InsertLoan(loan); err != nil {
			return err
		}

		return auditCreate(tx, entityTypeLoan, loan.ID, loan, patronID, now)
	})

	if err != nil {
		return circulation.Loan{}, err
	}

	return loan, nil
}

// projectCheckoutState gathers everything the checkout decision needs from
// the transaction. The returned reservation is the hold on the copy, if one
// exists and belongs to the patron.
func (e *Engine) projectCheckoutState(
	tx circulation.Transaction,
	cpy circulation.Copy,
	patronID uuid.UUID,
	now time.Time,
) (core.CheckoutState, *circulation.Reservation, error) {

	var empty core.CheckoutState

	sanctions, err := tx.ActiveSanctionsByPatron(patronID, now)
	if err != nil {
		return empty, nil, err
	}

	balance, err := outstandingBalance(tx, patronID)
	if err != nil {
		return empty, nil, err
	}

	openLoans, err := tx.OpenLoanCountByPatron(patronID)
	if err != nil {
		return empty, nil, err
	}

	var hold *circulation.Reservation

	if cpy.State == circulation.CopyReserved {
		reservation, found, holdErr := tx.FulfilledReservationByCopy(cpy.ID)
		if holdErr != nil {
			return empty, nil, holdErr
		}

		if found && reservation.PatronID == patronID {
			hold = &reservation
		}
	}

	state := core.CheckoutState{
		CopyState:          cpy.State,
		CopyHeldForPatron:  hold != nil,
		SanctionActive:     len(sanctions) > 0,
		OutstandingBalance: balance,
		OpenLoanCount:      openLoans,
	}

	return state, hold, nil
}

// takeCopy moves the copy to OnLoan, keeping the availability counter and a
// consumed hold consistent in the same transaction.
func (e *Engine) takeCopy(
	tx circulation.Transaction,
	cpy circulation.Copy,
	hold *circulation.Reservation,
	actorID uuid.UUID,
	now time.Time,
) error {

	cpyBefore := cpy
	cpy.State = circulation.CopyOnLoan

	if err := tx.UpdateCopy(cpy); err != nil {
		return err
	}

	if err := auditUpdate(tx, entityTypeCopy, cpy.ID, cpyBefore, cpy, actorID, now); err != nil {
		return err
	}

	// A Reserved copy was never counted available, only an Available one
	// decrements the counter.
	if cpyBefore.State == circulation.CopyAvailable {
		if err := e.adjustAvailable(tx, cpy.TitleID, -1, actorID, now); err != nil {
			return err
		}
	}

	if hold != nil {
		holdBefore := *hold
		hold.HeldCopyID = nil

		if err := tx.UpdateReservation(*hold); err != nil {
			return err
		}

		if err := auditUpdate(tx, entityTypeReservation, hold.ID, holdBefore, *hold, actorID, now); err != nil {
			return err
		}
	}

	return nil
}

// adjustAvailable maintains the derived availability counter alongside the
// copy state transition that caused the change.
func (e *Engine) adjustAvailable(
	tx circulation.Transaction,
	titleID uuid.UUID,
	delta int,
	actorID uuid.UUID,
	now time.Time,
) error {

	title, err := tx.GetTitle(titleID)
	if err != nil {
		return err
	}

	titleBefore := title
	title.AvailableCopies += delta

	if err = tx.UpdateTitle(title); err != nil {
		return err
	}

	return auditUpdate(tx, entityTypeTitle, title.ID, titleBefore, title, actorID, now)
}
