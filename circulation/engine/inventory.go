package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/core"
)

const (
	operationRegisterTitle    = "RegisterTitle"
	operationAddCopy          = "AddCopy"
	operationBeginMaintenance = "BeginMaintenance"
	operationEndMaintenance   = "EndMaintenance"
)

// RegisterTitle makes a catalog title known to the circulation ledgers,
// starting with zero copies. When a catalog is configured, the title must
// exist there.
func (e *Engine) RegisterTitle(ctx context.Context, titleID uuid.UUID) (circulation.Title, error) {
	if titleID == uuid.Nil {
		return circulation.Title{}, circulation.ErrNilID
	}

	if e.catalog != nil {
		if _, err := e.catalog.GetTitle(ctx, titleID); err != nil {
			return circulation.Title{}, errors.Join(circulation.ErrTitleNotFound, err)
		}
	}

	title := circulation.Title{ID: titleID}

	err := e.execute(ctx, operationRegisterTitle, func(tx circulation.Transaction) error {
		if err := tx.InsertTitle(title); err != nil {
			return err
		}

		return auditCreate(tx, entityTypeTitle, title.ID, title, SystemActorID, e.now())
	})

	if err != nil {
		return circulation.Title{}, err
	}

	return title, nil
}

// AddCopy brings a newly acquired physical copy into circulation. If
// reservations queue for the title, the new copy goes straight to the queue
// head as a hold instead of becoming generally available.
func (e *Engine) AddCopy(ctx context.Context, titleID uuid.UUID) (circulation.Copy, error) {
	if titleID == uuid.Nil {
		return circulation.Copy{}, circulation.ErrNilID
	}

	var cpy circulation.Copy

	err := e.execute(ctx, operationAddCopy, func(tx circulation.Transaction) error {
		now := e.now()

		title, err := tx.GetTitle(titleID)
		if err != nil {
			return err
		}

		queue, err := tx.PendingReservationsByTitle(titleID)
		if err != nil {
			return err
		}

		head, claimed := core.QueueHead(queue)

		cpy = circulation.Copy{
			ID:      uuid.New(),
			TitleID: titleID,
			State:   circulation.CopyAvailable,
		}

		titleBefore := title
		title.TotalCopies++

		if claimed {
			cpy.State = circulation.CopyReserved
		} else {
			title.AvailableCopies++
		}

		if err = tx.InsertCopy(cpy); err != nil {
			return err
		}

		if err = auditCreate(tx, entityTypeCopy, cpy.ID, cpy, SystemActorID, now); err != nil {
			return err
		}

		if err = tx.UpdateTitle(title); err != nil {
			return err
		}

		if err = auditUpdate(tx, entityTypeTitle, title.ID, titleBefore, title, SystemActorID, now); err != nil {
			return err
		}

		if claimed {
			return e.grantHold(tx, head, cpy.ID, SystemActorID, now)
		}

		return nil
	})

	if err != nil {
		return circulation.Copy{}, err
	}

	return cpy, nil
}

// BeginMaintenance takes an Available copy out of circulation.
func (e *Engine) BeginMaintenance(ctx context.Context, copyID uuid.UUID) error {
	if copyID == uuid.Nil {
		return circulation.ErrNilID
	}

	return e.execute(ctx, operationBeginMaintenance, func(tx circulation.Transaction) error {
		now := e.now()

		cpy, err := tx.GetCopy(copyID)
		if err != nil {
			return err
		}

		if cpy.State != circulation.CopyAvailable {
			return circulation.ErrInvalidCopyState
		}

		before := cpy
		cpy.State = circulation.CopyUnderMaintenance

		if err = tx.UpdateCopy(cpy); err != nil {
			return err
		}

		if err = auditUpdate(tx, entityTypeCopy, cpy.ID, before, cpy, SystemActorID, now); err != nil {
			return err
		}

		return e.adjustAvailable(tx, cpy.TitleID, -1, SystemActorID, now)
	})
}

// EndMaintenance returns a copy to service. Like a returned copy, it is
// offered to the reservation queue before it becomes generally available.
func (e *Engine) EndMaintenance(ctx context.Context, copyID uuid.UUID) error {
	if copyID == uuid.Nil {
		return circulation.ErrNilID
	}

	return e.execute(ctx, operationEndMaintenance, func(tx circulation.Transaction) error {
		now := e.now()

		cpy, err := tx.GetCopy(copyID)
		if err != nil {
			return err
		}

		if cpy.State != circulation.CopyUnderMaintenance {
			return circulation.ErrInvalidCopyState
		}

		return e.placeCopy(tx, cpy, SystemActorID, now)
	})
}
