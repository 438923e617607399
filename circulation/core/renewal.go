package core

import (
	"github.com/openlibra/circulation-engine/circulation"
)

// RenewalState is the state relevant to one renewal decision.
type RenewalState struct {
	LoanState     circulation.LoanState
	RenewalCount  int
	QueueNotEmpty bool
}

// DecideRenewal applies the renewal business rules.
//
// Rules:
//
//	ERROR: ErrAlreadyFinalized for finalized loans
//	ERROR: ErrRenewalDenied for overdue loans
//	ERROR: ErrRenewalDenied once the renewal limit is reached
//	ERROR: ErrRenewalDenied while any reservation queues for the title
func DecideRenewal(s RenewalState, maxRenewals int) error {
	if s.LoanState == circulation.LoanFinalized {
		return circulation.ErrAlreadyFinalized
	}

	if s.LoanState == circulation.LoanOverdue {
		return circulation.ErrRenewalDenied
	}

	if s.RenewalCount >= maxRenewals {
		return circulation.ErrRenewalDenied
	}

	if s.QueueNotEmpty {
		return circulation.ErrRenewalDenied
	}

	return nil
}
