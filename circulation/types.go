package circulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CopyState is the physical state of a single copy.
type CopyState string

const (
	CopyAvailable        CopyState = "Available"
	CopyOnLoan           CopyState = "OnLoan"
	CopyReserved         CopyState = "Reserved"
	CopyUnderMaintenance CopyState = "UnderMaintenance"
)

// LoanState is the stored lifecycle state of a loan. Overdue is derived from
// the clock and never stored, see Loan.StateAt.
type LoanState string

const (
	LoanActive    LoanState = "Active"
	LoanOverdue   LoanState = "Overdue"
	LoanFinalized LoanState = "Finalized"
)

// ReservationState is the lifecycle state of a reservation.
type ReservationState string

const (
	ReservationPending   ReservationState = "Pending"
	ReservationFulfilled ReservationState = "Fulfilled"
	ReservationExpired   ReservationState = "Expired"
	ReservationCancelled ReservationState = "Cancelled"
)

// FineState is the settlement state of a fine.
type FineState string

const (
	FinePending FineState = "Pending"
	FinePaid    FineState = "Paid"
)

// SanctionState is the lifecycle state of a sanction record.
type SanctionState string

const (
	SanctionActive SanctionState = "Active"
	SanctionLifted SanctionState = "Lifted"
)

// Title aggregates the copies of one catalog record. AvailableCopies is
// maintained transactionally with every copy state transition and always
// equals the count of copies in CopyAvailable.
type Title struct {
	ID              uuid.UUID
	TotalCopies     int
	AvailableCopies int
	Version         uint
}

// Copy is one physical circulate-able instance of a Title.
type Copy struct {
	ID      uuid.UUID
	TitleID uuid.UUID
	State   CopyState
	Version uint
}

// Loan records a copy held by a patron for a bounded period. ReturnedAt is
// set exactly when the loan is finalized. At most one open loan exists per
// copy.
type Loan struct {
	ID           uuid.UUID
	PatronID     uuid.UUID
	CopyID       uuid.UUID
	TitleID      uuid.UUID
	StartedAt    time.Time
	DueAt        time.Time
	ReturnedAt   *time.Time
	State        LoanState
	RenewalCount int
	Version      uint
}

// IsOpen reports whether the loan has not been finalized yet.
func (l Loan) IsOpen() bool {
	return l.State != LoanFinalized
}

// StateAt derives the effective loan state at the given time: a stored
// Active loan past its due time is Overdue.
func (l Loan) StateAt(at time.Time) LoanState {
	if l.State == LoanFinalized {
		return LoanFinalized
	}

	if at.After(l.DueAt) {
		return LoanOverdue
	}

	return LoanActive
}

// Reservation is a standing request for the next available copy of a title.
// While Pending, ExpiresAt bounds how long the request stays in the queue;
// once Fulfilled it bounds how long the reserved copy is held for pickup.
type Reservation struct {
	ID          uuid.UUID
	PatronID    uuid.UUID
	TitleID     uuid.UUID
	Priority    int
	RequestedAt time.Time
	ExpiresAt   time.Time
	HeldCopyID  *uuid.UUID
	State       ReservationState
	Version     uint
}

// Fine is the monetary penalty for one loan's late return. It is created at
// most once per loan and only for a positive amount.
type Fine struct {
	ID          uuid.UUID
	LoanID      uuid.UUID
	PatronID    uuid.UUID
	Amount      decimal.Decimal
	Reason      string
	State       FineState
	GeneratedAt time.Time
	Version     uint
}

// Payment is one settlement step against a fine. The remaining balance of a
// fine is always derived as Fine.Amount minus the sum of its payments.
type Payment struct {
	ID     uuid.UUID
	FineID uuid.UUID
	Amount decimal.Decimal
	Method string
	PaidAt time.Time
}

// Sanction is a time-bounded restriction on a patron's borrowing privilege.
type Sanction struct {
	ID       uuid.UUID
	PatronID uuid.UUID
	Type     string
	Reason   string
	StartsAt time.Time
	EndsAt   time.Time
	State    SanctionState
	Version  uint
}

// IsActiveAt reports whether the sanction restricts borrowing at the given
// time.
func (s Sanction) IsActiveAt(at time.Time) bool {
	if s.State != SanctionActive {
		return false
	}

	return !at.Before(s.StartsAt) && at.Before(s.EndsAt)
}

// ToTimestamp normalizes a time to UTC with microsecond precision, matching
// what the storage backends round-trip.
func ToTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
