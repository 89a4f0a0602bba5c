package borrowing

import (
	"errors"

	"library-system/pkg/ledger"
	"library-system/pkg/models"
)

type Reason string

const (
	ReasonCopyNotFound    Reason = "COPY_NOT_FOUND"
	ReasonCopyUnavailable Reason = "COPY_UNAVAILABLE"
	ReasonCopyOnLoan      Reason = "COPY_ALREADY_ON_LOAN"
	ReasonLoanLimit       Reason = "LOAN_LIMIT_REACHED"
	ReasonMemberBlocked   Reason = "MEMBER_BLOCKED"
)

// Eligibility is the outcome of the pre-borrow check. Any reason at all is
// a hard rejection; there is no partial eligibility.
type Eligibility struct {
	OK      bool     `json:"ok"`
	Reasons []Reason `json:"reasons,omitempty"`
}

// CheckEligibility runs every borrow precondition and accumulates all
// failures. The ledger status check and the open-loan store check overlap
// on purpose: if ledger and store ever diverge, either one blocks the
// borrow.
func (s *Store) CheckEligibility(copyUid, memberUid string, blocked bool, maxActiveLoans int) (Eligibility, error) {
	var reasons []Reason

	status, err := ledger.Status(s.db, copyUid)
	switch {
	case errors.Is(err, ledger.ErrCopyNotFound):
		reasons = append(reasons, ReasonCopyNotFound)
	case err != nil:
		return Eligibility{}, err
	case status != models.CopyStatusAvailable:
		reasons = append(reasons, ReasonCopyUnavailable)
	}

	if err == nil {
		open, err := s.ActiveForCopy(copyUid)
		if err != nil {
			return Eligibility{}, err
		}
		if open != nil {
			reasons = append(reasons, ReasonCopyOnLoan)
		}
	}

	count, err := s.CountActiveForMember(memberUid)
	if err != nil {
		return Eligibility{}, err
	}
	if count >= int64(maxActiveLoans) {
		reasons = append(reasons, ReasonLoanLimit)
	}

	if blocked {
		reasons = append(reasons, ReasonMemberBlocked)
	}

	return Eligibility{OK: len(reasons) == 0, Reasons: reasons}, nil
}
