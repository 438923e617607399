// Package memstore provides an in-memory implementation of the circulation
// storage contract, used by tests and ephemeral environments. A store-wide
// mutex makes every unit of work trivially serializable; writes are staged
// in an overlay and only merged into the base state when the unit of work
// returns without error, so rollback semantics match the Postgres backend.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/core"
)

// Compile-time contract assertion.
var _ circulation.Storage = (*Store)(nil)

type state struct {
	titles       map[uuid.UUID]circulation.Title
	copies       map[uuid.UUID]circulation.Copy
	loans        map[uuid.UUID]circulation.Loan
	reservations map[uuid.UUID]circulation.Reservation
	fines        map[uuid.UUID]circulation.Fine
	payments     map[uuid.UUID]circulation.Payment
	sanctions    map[uuid.UUID]circulation.Sanction
}

func newState() state {
	return state{
		titles:       make(map[uuid.UUID]circulation.Title),
		copies:       make(map[uuid.UUID]circulation.Copy),
		loans:        make(map[uuid.UUID]circulation.Loan),
		reservations: make(map[uuid.UUID]circulation.Reservation),
		fines:        make(map[uuid.UUID]circulation.Fine),
		payments:     make(map[uuid.UUID]circulation.Payment),
		sanctions:    make(map[uuid.UUID]circulation.Sanction),
	}
}

type outboxEntry struct {
	record    circulation.AuditRecord
	delivered bool
}

// Store is the in-memory storage backend.
type Store struct {
	mu     sync.Mutex
	state  state
	outbox []outboxEntry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Execute runs fn as one unit of work under the store mutex. Staged writes
// are merged into the base state only when fn returns nil.
func (s *Store) Execute(ctx context.Context, fn func(tx circulation.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{base: &s.state, staged: newState()}

	if err := fn(tx); err != nil {
		return err
	}

	tx.commit(s)

	return nil
}

// PendingAudit returns up to limit undelivered audit records, oldest first.
func (s *Store) PendingAudit(_ context.Context, limit int) ([]circulation.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []circulation.AuditRecord

	for _, entry := range s.outbox {
		if entry.delivered {
			continue
		}

		pending = append(pending, entry.record)

		if len(pending) == limit {
			break
		}
	}

	return pending, nil
}

// MarkAuditDelivered marks the given outbox records as delivered; unknown
// IDs are ignored.
func (s *Store) MarkAuditDelivered(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivered := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		delivered[id] = struct{}{}
	}

	for i := range s.outbox {
		if _, ok := delivered[s.outbox[i].record.ID]; ok {
			s.outbox[i].delivered = true
		}
	}

	return nil
}

// CopiesByTitle returns the current copies of a title, for invariant checks
// in tests.
func (s *Store) CopiesByTitle(titleID uuid.UUID) []circulation.Copy {
	s.mu.Lock()
	defer s.mu.Unlock()

	var copies []circulation.Copy

	for _, cpy := range s.state.copies {
		if cpy.TitleID == titleID {
			copies = append(copies, cpy)
		}
	}

	return copies
}

// transaction stages writes in an overlay state until commit.
type transaction struct {
	base   *state
	staged state
	audits []circulation.AuditRecord
}

func (t *transaction) commit(s *Store) {
	for id, title := range t.staged.titles {
		s.state.titles[id] = title
	}
	for id, cpy := range t.staged.copies {
		s.state.copies[id] = cpy
	}
	for id, loan := range t.staged.loans {
		s.state.loans[id] = loan
	}
	for id, reservation := range t.staged.reservations {
		s.state.reservations[id] = reservation
	}
	for id, fine := range t.staged.fines {
		s.state.fines[id] = fine
	}
	for id, payment := range t.staged.payments {
		s.state.payments[id] = payment
	}
	for id, sanction := range t.staged.sanctions {
		s.state.sanctions[id] = sanction
	}

	for _, record := range t.audits {
		s.outbox = append(s.outbox, outboxEntry{record: record})
	}
}

// GetTitle implements circulation.Transaction.
func (t *transaction) GetTitle(id uuid.UUID) (circulation.Title, error) {
	if title, ok := t.staged.titles[id]; ok {
		return title, nil
	}

	if title, ok := t.base.titles[id]; ok {
		return title, nil
	}

	return circulation.Title{}, circulation.ErrTitleNotFound
}

// InsertTitle implements circulation.Transaction.
func (t *transaction) InsertTitle(title circulation.Title) error {
	if _, err := t.GetTitle(title.ID); err == nil {
		return circulation.ErrDuplicateEntity
	}

	t.staged.titles[title.ID] = title

	return nil
}

// UpdateTitle implements circulation.Transaction.
func (t *transaction) UpdateTitle(title circulation.Title) error {
	current, err := t.GetTitle(title.ID)
	if err != nil {
		return err
	}

	if current.Version != title.Version {
		return circulation.ErrConcurrencyConflict
	}

	title.Version++
	t.staged.titles[title.ID] = title

	return nil
}

// GetCopy implements circulation.Transaction.
func (t *transaction) GetCopy(id uuid.UUID) (circulation.Copy, error) {
	if cpy, ok := t.staged.copies[id]; ok {
		return cpy, nil
	}

	if cpy, ok := t.base.copies[id]; ok {
		return cpy, nil
	}

	return circulation.Copy{}, circulation.ErrCopyNotFound
}

// InsertCopy implements circulation.Transaction.
func (t *transaction) InsertCopy(cpy circulation.Copy) error {
	if _, err := t.GetCopy(cpy.ID); err == nil {
		return circulation.ErrDuplicateEntity
	}

	t.staged.copies[cpy.ID] = cpy

	return nil
}

// UpdateCopy implements circulation.Transaction.
func (t *transaction) UpdateCopy(cpy circulation.Copy) error {
	current, err := t.GetCopy(cpy.ID)
	if err != nil {
		return err
	}

	if current.Version != cpy.Version {
		return circulation.ErrConcurrencyConflict
	}

	cpy.Version++
	t.staged.copies[cpy.ID] = cpy

	return nil
}

// GetLoan implements circulation.Transaction.
func (t *transaction) GetLoan(id uuid.UUID) (circulation.Loan, error) {
	if loan, ok := t.staged.loans[id]; ok {
		return loan, nil
	}

	if loan, ok := t.base.loans[id]; ok {
		return loan, nil
	}

	return circulation.Loan{}, circulation.ErrLoanNotFound
}

// InsertLoan implements circulation.Transaction.
func (t *transaction) InsertLoan(loan circulation.Loan) error {
	if _, err := t.GetLoan(loan.ID); err == nil {
		return circulation.ErrDuplicateEntity
	}

	t.staged.loans[loan.ID] = loan

	return nil
}

// UpdateLoan implements circulation.Transaction.
func (t *transaction) UpdateLoan(loan circulation.Loan) error {
	current, err := t.GetLoan(loan.ID)
	if err != nil {
		return err
	}

	if current.Version != loan.Version {
		return circulation.ErrConcurrencyConflict
	}

	loan.Version++
	t.staged.loans[loan.ID] = loan

	return nil
}

// OpenLoanByCopy implements circulation.Transaction.
func (t *transaction) OpenLoanByCopy(copyID uuid.UUID) (circulation.Loan, bool, error) {
	var found circulation.Loan
	ok := false

	t.eachLoan(func(loan circulation.Loan) {
		if loan.CopyID == copyID && loan.IsOpen() {
			found = loan
			ok = true
		}
	})

	return found, ok, nil
}

// OpenLoanCountByPatron implements circulation.Transaction.
func (t *transaction) OpenLoanCountByPatron(patronID uuid.UUID) (int, error) {
	count := 0

	t.eachLoan(func(loan circulation.Loan) {
		if loan.PatronID == patronID && loan.IsOpen() {
			count++
		}
	})

	return count, nil
}

func (t *transaction) eachLoan(visit func(loan circulation.Loan)) {
	for id, loan := range t.base.loans {
		if _, overridden := t.staged.loans[id]; overridden {
			continue
		}

		visit(loan)
	}

	for _, loan := range t.staged.loans {
		visit(loan)
	}
}

// GetReservation implements circulation.Transaction.
func (t *transaction) GetReservation(id uuid.UUID) (circulation.Reservation, error) {
	if reservation, ok := t.staged.reservations[id]; ok {
		return reservation, nil
	}

	if reservation, ok := t.base.reservations[id]; ok {
		return reservation, nil
	}

	return circulation.Reservation{}, circulation.ErrReservationNotFound
}

// InsertReservation implements circulation.Transaction.
func (t *transaction) InsertReservation(reservation circulation.Reservation) error {
	if _, err := t.GetReservation(reservation.ID); err == nil {
		return circulation.ErrDuplicateEntity
	}

	t.staged.reservations[reservation.ID] = reservation

	return nil
}

// UpdateReservation implements circulation.Transaction.
func (t *transaction) UpdateReservation(reservation circulation.Reservation) error {
	current, err := t.GetReservation(reservation.ID)
	if err != nil {
		return err
	}

	if current.Version != reservation.Version {
		return circulation.ErrConcurrencyConflict
	}

	reservation.Version++
	t.staged.reservations[reservation.ID] = reservation

	return nil
}

// PendingReservationsByTitle implements circulation.Transaction.
func (t *transaction) PendingReservationsByTitle(titleID uuid.UUID) ([]circulation.Reservation, error) {
	var queue []circulation.Reservation

	t.eachReservation(func(reservation circulation.Reservation) {
		if reservation.TitleID == titleID && reservation.State == circulation.ReservationPending {
			queue = append(queue, reservation)
		}
	})

	core.OrderReservations(queue)

	return queue, nil
}

// HasPendingReservation implements circulation.Transaction.
func (t *transaction) HasPendingReservation(titleID uuid.UUID, patronID uuid.UUID) (bool, error) {
	found := false

	t.eachReservation(func(reservation circulation.Reservation) {
		if reservation.TitleID == titleID &&
			reservation.PatronID == patronID &&
			reservation.State == circulation.ReservationPending {
			found = true
		}
	})

	return found, nil
}

// FulfilledReservationByCopy implements circulation.Transaction.
func (t *transaction) FulfilledReservationByCopy(copyID uuid.UUID) (circulation.Reservation, bool, error) {
	var held circulation.Reservation
	ok := false

	t.eachReservation(func(reservation circulation.Reservation) {
		if reservation.State == circulation.ReservationFulfilled &&
			reservation.HeldCopyID != nil &&
			*reservation.HeldCopyID == copyID {
			held = reservation
			ok = true
		}
	})

	return held, ok, nil
}

// StaleReservations implements circulation.Transaction.
func (t *transaction) StaleReservations(asOf time.Time) ([]circulation.Reservation, error) {
	var stale []circulation.Reservation

	t.eachReservation(func(reservation circulation.Reservation) {
		if !reservation.ExpiresAt.Before(asOf) {
			return
		}

		switch reservation.State {
		case circulation.ReservationPending:
			stale = append(stale, reservation)
		case circulation.ReservationFulfilled:
			if reservation.HeldCopyID != nil {
				stale = append(stale, reservation)
			}
		}
	})

	core.OrderReservations(stale)

	return stale, nil
}

func (t *transaction) eachReservation(visit func(reservation circulation.Reservation)) {
	for id, reservation := range t.base.reservations {
		if _, overridden := t.staged.reservations[id]; overridden {
			continue
		}

		visit(reservation)
	}

	for _, reservation := range t.staged.reservations {
		visit(reservation)
	}
}

// GetFine implements circulation.Transaction.
func (t *transaction) GetFine(id uuid.UUID) (circulation.Fine, error) {
	if fine, ok := t.staged.fines[id]; ok {
		return fine, nil
	}

	if fine, ok := t.base.fines[id]; ok {
		return fine, nil
	}

	return circulation.Fine{}, circulation.ErrFineNotFound
}

// InsertFine implements circulation.Transaction.
func (t *transaction) InsertFine(fine circulation.Fine) error {
	if _, err := t.GetFine(fine.ID); err == nil {
		return circulation.ErrDuplicateEntity
	}

	t.staged.fines[fine.ID] = fine

	return nil
}

// UpdateFine implements circulation.Transaction.
func (t *transaction) UpdateFine(fine circulation.Fine) error {
	current, err := t.GetFine(fine.ID)
	if err != nil {
		return err
	}

	if current.Version != fine.Version {
		return circulation.ErrConcurrencyConflict
	}

	fine.Version++
	t.staged.fines[fine.ID] = fine

	return nil
}

// FineByLoan implements circulation.Transaction.
func (t *transaction) FineByLoan(loanID uuid.UUID) (circulation.Fine, bool, error) {
	var found circulation.Fine
	ok := false

	t.eachFine(func(fine circulation.Fine) {
		if fine.LoanID == loanID {
			found = fine
			ok = true
		}
	})

	return found, ok, nil
}

// PendingFinesByPatron implements circulation.Transaction.
func (t *transaction) PendingFinesByPatron(patronID uuid.UUID) ([]circulation.Fine, error) {
	var pending []circulation.Fine

	t.eachFine(func(fine circulation.Fine) {
		if fine.PatronID == patronID && fine.State == circulation.FinePending {
			pending = append(pending, fine)
		}
	})

	return pending, nil
}

func (t *transaction) eachFine(visit func(fine circulation.Fine)) {
	for id, fine := range t.base.fines {
		if _, overridden := t.staged.fines[id]; overridden {
			continue
		}

		visit(fine)
	}

	for _, fine := range t.staged.fines {
		visit(fine)
	}
}

// InsertPayment implements circulation.Transaction.
func (t *transaction) InsertPayment(payment circulation.Payment) error {
	if _, ok := t.staged.payments[payment.ID]; ok {
		return circulation.ErrDuplicateEntity
	}

	if _, ok := t.base.payments[payment.ID]; ok {
		return circulation.ErrDuplicateEntity
	}

	t.staged.payments[payment.ID] = payment

	return nil
}

// PaymentsTotalByFine implements circulation.Transaction.
func (t *transaction) PaymentsTotalByFine(fineID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero

	for id, payment := range t.base.payments {
		if _, overridden := t.staged.payments[id]; overridden {
			continue
		}

		if payment.FineID == fineID {
			total = total.Add(payment.Amount)
		}
	}

	for _, payment := range t.staged.payments {
		if payment.FineID == fineID {
			total = total.Add(payment.Amount)
		}
	}

	return total, nil
}

// GetSanction implements circulation.Transaction.
func (t *transaction) GetSanction(id uuid.UUID) (circulation.Sanction, error) {
	if sanction, ok := t.staged.sanctions[id]; ok {
		return sanction, nil
	}

	if sanction, ok := t.base.sanctions[id]; ok {
		return sanction, nil
	}

	return circulation.Sanction{}, circulation.ErrSanctionNotFound
}

// InsertSanction implements circulation.Transaction.
func (t *transaction) InsertSanction(sanction circulation.Sanction) error {
	if _, err := t.GetSanction(sanction.ID); err == nil {
		return circulation.ErrDuplicateEntity
	}

	t.staged.sanctions[sanction.ID] = sanction

	return nil
}

// UpdateSanction implements circulation.Transaction.
func (t *transaction) UpdateSanction(sanction circulation.Sanction) error {
	current, err := t.GetSanction(sanction.ID)
	if err != nil {
		return err
	}

	if current.Version != sanction.Version {
		return circulation.ErrConcurrencyConflict
	}

	sanction.Version++
	t.staged.sanctions[sanction.ID] = sanction

	return nil
}

// ActiveSanctionsByPatron implements circulation.Transaction.
func (t *transaction) ActiveSanctionsByPatron(patronID uuid.UUID, at time.Time) ([]circulation.Sanction, error) {
	var active []circulation.Sanction

	for id, sanction := range t.base.sanctions {
		if _, overridden := t.staged.sanctions[id]; overridden {
			continue
		}

		if sanction.PatronID == patronID && sanction.IsActiveAt(at) {
			active = append(active, sanction)
		}
	}

	for _, sanction := range t.staged.sanctions {
		if sanction.PatronID == patronID && sanction.IsActiveAt(at) {
			active = append(active, sanction)
		}
	}

	return active, nil
}

// AppendAudit implements circulation.Transaction.
func (t *transaction) AppendAudit(record circulation.AuditRecord) error {
	t.audits = append(t.audits, record)
	return nil
}
