package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
)

const (
	operationReserve           = "Reserve"
	operationCancelReservation = "CancelReservation"
	operationExpireStale       = "ExpireReservations"
)

// Reserve enqueues a standing request for the next available copy of a
// title. The queue is served by priority descending, then request time
// ascending. A patron holds at most one pending reservation per title.
func (e *Engine) Reserve(
	ctx context.Context,
	patronID uuid.UUID,
	titleID uuid.UUID,
	priority int,
) (circulation.Reservation, error) {

	if patronID == uuid.Nil || titleID == uuid.Nil {
		return circulation.Reservation{}, circulation.ErrNilID
	}

	if err := e.requirePatronActive(ctx, patronID); err != nil {
		return circulation.Reservation{}, err
	}

	var reservation circulation.Reservation

	err := e.execute(ctx, operationReserve, func(tx circulation.Transaction) error {
		now := e.now()

		if _, err := tx.GetTitle(titleID); err != nil {
			return err
		}

		duplicate, err := tx.HasPendingReservation(titleID, patronID)
		if err != nil {
			return err
		}

		if duplicate {
			return circulation.ErrDuplicateReservation
		}

		reservation = circulation.Reservation{
			ID:          uuid.New(),
			PatronID:    patronID,
			TitleID:     titleID,
			Priority:    priority,
			RequestedAt: now,
			ExpiresAt:   now.Add(e.config.ReservationExpiry),
			State:       circulation.ReservationPending,
		}

		if err = tx.InsertReservation(reservation); err != nil {
			return err
		}

		return auditCreate(tx, entityTypeReservation, reservation.ID, reservation, patronID, now)
	})

	if err != nil {
		return circulation.Reservation{}, err
	}

	return reservation, nil
}

// CancelReservation lets a patron withdraw their own pending reservation.
//
// A race between cancellation and fulfillment resolves by commit order: if
// fulfillment committed first, the reservation is no longer Pending and the
// cancellation fails with ErrReservationNotPending.
func (e *Engine) CancelReservation(ctx context.Context, reservationID uuid.UUID, patronID uuid.UUID) error {
	if reservationID == uuid.Nil || patronID == uuid.Nil {
		return circulation.ErrNilID
	}

	return e.execute(ctx, operationCancelReservation, func(tx circulation.Transaction) error {
		now := e.now()

		reservation, err := tx.GetReservation(reservationID)
		if err != nil {
			return err
		}

		if reservation.PatronID != patronID {
			return circulation.ErrNotReservationOwner
		}

		if reservation.State != circulation.ReservationPending {
			return circulation.ErrReservationNotPending
		}

		before := reservation
		reservation.State = circulation.ReservationCancelled

		if err = tx.UpdateReservation(reservation); err != nil {
			return err
		}

		return auditUpdate(tx, entityTypeReservation, reservation.ID, before, reservation, patronID, now)
	})
}

// ExpireReservations is the background sweep over the reservation queue:
// pending requests and unclaimed holds past their expiry become Expired, and
// a freed hold immediately re-runs fulfillment for the next waiter.
//
// The sweep is idempotent and safe to re-run; it returns how many
// reservations it expired.
func (e *Engine) ExpireReservations(ctx context.Context) (int, error) {
	expired := 0

	err := e.execute(ctx, operationExpireStale, func(tx circulation.Transaction) error {
		now := e.now()
		expired = 0

		stale, err := tx.StaleReservations(now)
		if err != nil {
			return err
		}

		for _, reservation := range stale {
			if err = e.expireReservation(tx, reservation, now); err != nil {
				return err
			}

			expired++
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return expired, nil
}

// expireReservation expires one stale reservation and frees its hold.
func (e *Engine) expireReservation(
	tx circulation.Transaction,
	reservation circulation.Reservation,
	now time.Time,
) error {

	before := reservation
	heldCopyID := reservation.HeldCopyID
	reservation.State = circulation.ReservationExpired
	reservation.HeldCopyID = nil

	if err := tx.UpdateReservation(reservation); err != nil {
		return err
	}

	if err := auditUpdate(tx, entityTypeReservation, reservation.ID, before, reservation, SystemActorID, now); err != nil {
		return err
	}

	if heldCopyID == nil {
		return nil
	}

	cpy, err := tx.GetCopy(*heldCopyID)
	if err != nil {
		return err
	}

	if cpy.State != circulation.CopyReserved {
		return nil
	}

	return e.placeCopy(tx, cpy, SystemActorID, now)
}
