package circulation

import (
	"errors"
)

// Validation errors: malformed input, rejected before any mutation.
var (
	ErrNilID               = errors.New("id must not be nil")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidPeriod       = errors.New("period must be positive")
	ErrTitleNotFound       = errors.New("title not found")
	ErrCopyNotFound        = errors.New("copy not found")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrFineNotFound        = errors.New("fine not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrSanctionNotFound    = errors.New("sanction not found")
	ErrPatronNotFound      = errors.New("patron not found")
)

// State conflicts: a precondition on current entity state is violated.
// Always surfaced to the caller, never auto-retried.
var (
	ErrCopyUnavailable       = errors.New("copy is not available")
	ErrInvalidCopyState      = errors.New("copy is not in the required state")
	ErrAlreadyFinalized      = errors.New("loan is already finalized")
	ErrOverPayment           = errors.New("payment exceeds remaining fine balance")
	ErrDuplicateReservation  = errors.New("patron already holds a pending reservation for this title")
	ErrReservationNotPending = errors.New("reservation is not pending")
	ErrSanctionNotActive     = errors.New("sanction is not active")
	ErrDuplicateEntity       = errors.New("entity with this id already exists")
)

// Policy denials: the business rules reject the request.
var (
	ErrPatronBlocked       = errors.New("patron is blocked from borrowing")
	ErrPatronInactive      = errors.New("patron is not active")
	ErrLimitExceeded       = errors.New("patron has reached the open loan limit")
	ErrRenewalDenied       = errors.New("loan renewal denied")
	ErrNotReservationOwner = errors.New("reservation belongs to another patron")
)

// Transient infrastructure errors: the caller may retry with backoff.
var (
	ErrConcurrencyConflict = errors.New("concurrency conflict, transaction must be retried")
	ErrStorageUnavailable  = errors.New("storage is unavailable")
)

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errorsIsAny(err,
		ErrNilID, ErrInvalidAmount, ErrInvalidPeriod,
		ErrTitleNotFound, ErrCopyNotFound, ErrLoanNotFound, ErrFineNotFound,
		ErrReservationNotFound, ErrSanctionNotFound, ErrPatronNotFound,
	)
}

// IsStateConflict reports whether err is a precondition violation on current
// entity state.
func IsStateConflict(err error) bool {
	return errorsIsAny(err,
		ErrCopyUnavailable, ErrInvalidCopyState, ErrAlreadyFinalized,
		ErrOverPayment, ErrDuplicateReservation, ErrReservationNotPending,
		ErrSanctionNotActive, ErrDuplicateEntity,
	)
}

// IsPolicyDenied reports whether err is a business-rule rejection.
func IsPolicyDenied(err error) bool {
	return errorsIsAny(err,
		ErrPatronBlocked, ErrPatronInactive, ErrLimitExceeded,
		ErrRenewalDenied, ErrNotReservationOwner,
	)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errorsIsAny(err, ErrConcurrencyConflict, ErrStorageUnavailable)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
