package circulation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveFineRate is returned when the daily fine rate is zero or negative.
	ErrNonPositiveFineRate = errors.New("daily fine rate must be positive")

	// ErrNonPositiveLoanPeriod is returned when the default loan period is zero or negative.
	ErrNonPositiveLoanPeriod = errors.New("default loan period must be positive")

	// ErrNegativeMaxRenewals is returned when the renewal limit is negative.
	ErrNegativeMaxRenewals = errors.New("max renewals must not be negative")

	// ErrNonPositiveLoanLimit is returned when the open loan limit is zero or negative.
	ErrNonPositiveLoanLimit = errors.New("max loans per patron must be positive")

	// ErrNonPositiveReservationExpiry is returned when the reservation expiry is zero or negative.
	ErrNonPositiveReservationExpiry = errors.New("reservation expiry must be positive")

	// ErrNegativeBlockThreshold is returned when the unpaid fine block threshold is negative.
	ErrNegativeBlockThreshold = errors.New("block threshold must not be negative")
)

// Config holds the policy knobs of the engine. The zero value is not usable,
// start from DefaultConfig.
type Config struct {
	// DailyFineRate is charged per whole day of lateness.
	DailyFineRate decimal.Decimal

	// LoanPeriodDefault is used when checkout is called without an explicit period.
	LoanPeriodDefault time.Duration

	// MaxRenewals bounds how often a single loan may be renewed.
	MaxRenewals int

	// MaxLoansPerPatron bounds the number of simultaneously open loans.
	MaxLoansPerPatron int

	// ReservationExpiry bounds both how long a pending reservation stays in
	// the queue and how long a fulfilled hold waits for pickup.
	ReservationExpiry time.Duration

	// BlockThresholdUnpaidFines blocks checkout once the outstanding
	// pending-fine balance reaches this amount.
	BlockThresholdUnpaidFines decimal.Decimal
}

// DefaultConfig returns the standard policy configuration.
func DefaultConfig() Config {
	return Config{
		DailyFineRate:             decimal.NewFromFloat(0.50),
		LoanPeriodDefault:         21 * 24 * time.Hour,
		MaxRenewals:               2,
		MaxLoansPerPatron:         10,
		ReservationExpiry:         3 * 24 * time.Hour,
		BlockThresholdUnpaidFines: decimal.NewFromInt(10),
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c Config) Validate() error {
	if !c.DailyFineRate.IsPositive() {
		return ErrNonPositiveFineRate
	}

	if c.LoanPeriodDefault <= 0 {
		return ErrNonPositiveLoanPeriod
	}

	if c.MaxRenewals < 0 {
		return ErrNegativeMaxRenewals
	}

	if c.MaxLoansPerPatron <= 0 {
		return ErrNonPositiveLoanLimit
	}

	if c.ReservationExpiry <= 0 {
		return ErrNonPositiveReservationExpiry
	}

	if c.BlockThresholdUnpaidFines.IsNegative() {
		return ErrNegativeBlockThreshold
	}

	return nil
}
