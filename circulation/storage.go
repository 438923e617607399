package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Storage is the transactional contract every persistence backend must honor.
//
// Execute runs fn as one serializable unit of work: either every write fn
// performs is committed, or none is. Backends report write-write conflicts
// between concurrent units as ErrConcurrencyConflict, which the engine
// retries with backoff. Version checks on updates use the same error, so a
// stale read-modify-write can never commit.
type Storage interface {
	Execute(ctx context.Context, fn func(tx Transaction) error) error

	// PendingAudit returns up to limit committed audit records that have not
	// been marked delivered yet, oldest first.
	PendingAudit(ctx context.Context, limit int) ([]AuditRecord, error)

	// MarkAuditDelivered marks the given outbox records as delivered.
	// Unknown IDs are ignored, so redelivery after a partial failure is safe.
	MarkAuditDelivered(ctx context.Context, ids []uuid.UUID) error
}

// Transaction is the entity access surface available inside one unit of work.
//
// Get methods return the Not-Found error of their entity. Update methods
// compare the entity's Version against the stored one and fail with
// ErrConcurrencyConflict on a mismatch; on success the stored version is
// incremented. Insert methods fail with ErrDuplicateEntity on an ID collision.
type Transaction interface {
	GetTitle(id uuid.UUID) (Title, error)
	InsertTitle(title Title) error
	UpdateTitle(title Title) error

	GetCopy(id uuid.UUID) (Copy, error)
	InsertCopy(copy Copy) error
	UpdateCopy(copy Copy) error

	GetLoan(id uuid.UUID) (Loan, error)
	InsertLoan(loan Loan) error
	UpdateLoan(loan Loan) error

	// OpenLoanByCopy returns the single non-finalized loan referencing the
	// copy, if any.
	OpenLoanByCopy(copyID uuid.UUID) (Loan, bool, error)

	// OpenLoanCountByPatron counts the patron's non-finalized loans.
	OpenLoanCountByPatron(patronID uuid.UUID) (int, error)

	GetReservation(id uuid.UUID) (Reservation, error)
	InsertReservation(reservation Reservation) error
	UpdateReservation(reservation Reservation) error

	// PendingReservationsByTitle returns the title's queue ordered by
	// priority descending, then request time ascending.
	PendingReservationsByTitle(titleID uuid.UUID) ([]Reservation, error)

	// HasPendingReservation reports whether the patron already queues for
	// the title.
	HasPendingReservation(titleID uuid.UUID, patronID uuid.UUID) (bool, error)

	// FulfilledReservationByCopy returns the reservation currently holding
	// the copy for pickup, if any.
	FulfilledReservationByCopy(copyID uuid.UUID) (Reservation, bool, error)

	// StaleReservations returns reservations whose ExpiresAt lies strictly
	// before asOf and that still occupy the queue or a copy: Pending ones,
	// and Fulfilled ones whose held copy has not been picked up.
	StaleReservations(asOf time.Time) ([]Reservation, error)

	GetFine(id uuid.UUID) (Fine, error)
	InsertFine(fine Fine) error
	UpdateFine(fine Fine) error

	// FineByLoan returns the fine generated for the loan, if any.
	FineByLoan(loanID uuid.UUID) (Fine, bool, error)

	// PendingFinesByPatron returns the patron's unpaid fines.
	PendingFinesByPatron(patronID uuid.UUID) ([]Fine, error)

	InsertPayment(payment Payment) error

	// PaymentsTotalByFine sums all payments recorded against the fine.
	PaymentsTotalByFine(fineID uuid.UUID) (decimal.Decimal, error)

	GetSanction(id uuid.UUID) (Sanction, error)
	InsertSanction(sanction Sanction) error
	UpdateSanction(sanction Sanction) error

	// ActiveSanctionsByPatron returns sanctions restricting the patron at
	// the given time.
	ActiveSanctionsByPatron(patronID uuid.UUID, at time.Time) ([]Sanction, error)

	// AppendAudit stages an audit record in the outbox; it commits or rolls
	// back together with the business writes of this transaction.
	AppendAudit(record AuditRecord) error
}
