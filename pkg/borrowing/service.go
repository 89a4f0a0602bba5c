package borrowing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"library-system/pkg/fees"
	"library-system/pkg/ledger"
	"library-system/pkg/models"
	"library-system/pkg/policy"
	"library-system/pkg/risk"
)

// MemberDirectory is the external member service. Lookups are advisory:
// when the directory is down the lending desk keeps working, except that a
// member already reported blocked stays rejected.
type MemberDirectory interface {
	MemberExists(memberUid string) (bool, error)
	IsBlocked(memberUid string) (bool, error)
}

// Catalog is the external catalog service, consulted when a copy is
// registered for lending.
type Catalog interface {
	CopyExists(copyUid string) (bool, error)
	GetCopy(copyUid string) (CopyInfo, error)
}

type CopyInfo struct {
	BookUid    string
	CopyNumber string
}

// Service is the lifecycle controller. Borrow and Return each run as one
// database transaction over the copy ledger and the transaction store, so
// no reader ever observes a loan without its reservation or vice versa.
type Service struct {
	db      *gorm.DB
	store   *Store
	policy  policy.Policy
	members MemberDirectory
	catalog Catalog
}

func NewService(db *gorm.DB, p policy.Policy, members MemberDirectory, catalog Catalog) *Service {
	return &Service{
		db:      db,
		store:   NewStore(db),
		policy:  p,
		members: members,
		catalog: catalog,
	}
}

func (s *Service) Policy() policy.Policy {
	return s.policy
}

// Borrow lends a copy to a member. Eligibility is validated inside the same
// transaction that creates the loan and reserves the copy, closing the
// check-then-act window between racing borrowers.
func (s *Service) Borrow(copyUid, memberUid string, loanPeriodDays int) (*models.BorrowingTransaction, error) {
	if copyUid == "" || memberUid == "" {
		return nil, invalidInput("copyUid and memberUid are required")
	}
	if loanPeriodDays < 0 {
		return nil, invalidInput("loanPeriodDays must not be negative")
	}
	if loanPeriodDays == 0 {
		loanPeriodDays = s.policy.LoanPeriodDays
	}

	blocked, err := s.memberBlocked(memberUid)
	if err != nil {
		return nil, err
	}

	var created models.BorrowingTransaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		st := s.store.WithTx(tx)
		if err := st.LockMember(memberUid); err != nil {
			return unavailable(err)
		}
		elig, err := st.CheckEligibility(copyUid, memberUid, blocked, s.policy.MaxActiveLoans)
		if err != nil {
			return unavailable(err)
		}
		if !elig.OK {
			return rejectionFor(elig, copyUid, memberUid, s.policy.MaxActiveLoans)
		}

		now := time.Now()
		created = models.BorrowingTransaction{
			TransactionUid: uuid.New().String(),
			CopyUid:        copyUid,
			MemberUid:      memberUid,
			BorrowDate:     now,
			DueDate:        now.AddDate(0, 0, loanPeriodDays),
			Status:         models.TransactionStatusActive,
		}
		if err := tx.Create(&created).Error; err != nil {
			return unavailable(err)
		}

		switch err := ledger.Reserve(tx, copyUid); {
		case errors.Is(err, ledger.ErrCopyUnavailable):
			return conflict("copy", copyUid, "copy is already borrowed")
		case errors.Is(err, ledger.ErrCopyNotFound):
			return notFound("copy", copyUid)
		case err != nil:
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Return closes a loan: return date and terminal status on the transaction,
// copy released in the ledger, both in one database transaction. A late
// return is not an error; the assessment carries the fee it accrued.
func (s *Service) Return(transactionUid, notes string) (*models.BorrowingTransaction, fees.Assessment, error) {
	if transactionUid == "" {
		return nil, fees.Assessment{}, invalidInput("transactionUid is required")
	}

	var returned models.BorrowingTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		st := s.store.WithTx(tx)
		t, err := st.ByUid(transactionUid)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("transaction", transactionUid)
		}
		if err != nil {
			return unavailable(err)
		}
		if t.Status == models.TransactionStatusReturned {
			return conflict("transaction", transactionUid, "transaction is already returned")
		}

		now := time.Now()
		t.ReturnDate = &now
		t.Status = models.TransactionStatusReturned
		t.Notes = mergeNotes(t.Notes, notes)
		if err := tx.Save(t).Error; err != nil {
			return unavailable(err)
		}

		switch err := ledger.Release(tx, t.CopyUid); {
		case errors.Is(err, ledger.ErrCopyNotBorrowed), errors.Is(err, ledger.ErrCopyNotFound):
			return conflict("copy", t.CopyUid, "copy ledger out of step with transaction store")
		case err != nil:
			return unavailable(err)
		}
		returned = *t
		return nil
	})
	if err != nil {
		return nil, fees.Assessment{}, err
	}
	return &returned, fees.ForTransaction(&returned, time.Now(), s.policy), nil
}

// RegisterCopy adds a copy to the ledger. With a catalog attached the copy
// must exist there, and catalog metadata wins over the caller's.
func (s *Service) RegisterCopy(copyUid, bookUid, copyNumber string) (*models.Copy, error) {
	if copyUid == "" {
		copyUid = uuid.New().String()
	}
	if s.catalog != nil {
		exists, err := s.catalog.CopyExists(copyUid)
		if err != nil {
			return nil, unavailable(err)
		}
		if !exists {
			return nil, notFound("copy", copyUid)
		}
		info, err := s.catalog.GetCopy(copyUid)
		if err != nil {
			return nil, unavailable(err)
		}
		bookUid = info.BookUid
		copyNumber = info.CopyNumber
	}
	if bookUid == "" {
		return nil, invalidInput("bookUid is required")
	}

	copy := models.Copy{
		CopyUid:    copyUid,
		BookUid:    bookUid,
		CopyNumber: copyNumber,
		Status:     models.CopyStatusAvailable,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Copy
		if err := tx.Where("copy_uid = ?", copyUid).First(&existing).Error; err == nil {
			return conflict("copy", copyUid, "copy is already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return unavailable(err)
		}
		if err := tx.Create(&copy).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (s *Service) GetCopy(copyUid string) (*models.Copy, error) {
	var copy models.Copy
	if err := s.db.Where("copy_uid = ?", copyUid).First(&copy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("copy", copyUid)
		}
		return nil, unavailable(err)
	}
	return &copy, nil
}

func (s *Service) ActiveLoansForMember(memberUid string) ([]models.BorrowingTransaction, error) {
	loans, err := s.store.ActiveForMember(memberUid)
	if err != nil {
		return nil, unavailable(err)
	}
	return loans, nil
}

func (s *Service) ActiveLoanForCopy(copyUid string) (*models.BorrowingTransaction, error) {
	loan, err := s.store.ActiveForCopy(copyUid)
	if err != nil {
		return nil, unavailable(err)
	}
	return loan, nil
}

func (s *Service) HistoryForMember(memberUid string) ([]models.BorrowingTransaction, error) {
	loans, err := s.store.HistoryForMember(memberUid)
	if err != nil {
		return nil, unavailable(err)
	}
	return loans, nil
}

// Fee assesses the late fee for one transaction as of the given instant.
// A non-nil override policy is used for this assessment instead of the
// service policy, so a desk clerk can quote a fee under adjusted terms
// without reconfiguring the service.
func (s *Service) Fee(transactionUid string, asOf time.Time, override *policy.Policy) (*models.BorrowingTransaction, fees.Assessment, error) {
	t, err := s.store.ByUid(transactionUid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fees.Assessment{}, notFound("transaction", transactionUid)
	}
	if err != nil {
		return nil, fees.Assessment{}, unavailable(err)
	}
	return t, fees.ForTransaction(t, asOf, s.effectivePolicy(override)), nil
}

// RiskProfile scores a member over their full history.
func (s *Service) RiskProfile(memberUid string, asOf time.Time) (risk.Profile, error) {
	if s.members != nil {
		if exists, err := s.members.MemberExists(memberUid); err == nil && !exists {
			return risk.Profile{}, notFound("member", memberUid)
		}
	}
	history, err := s.store.HistoryForMember(memberUid)
	if err != nil {
		return risk.Profile{}, unavailable(err)
	}
	return risk.Score(memberUid, history, asOf, s.policy), nil
}

// ListOverdue returns every open loan that is overdue as of the instant.
func (s *Service) ListOverdue(asOf time.Time) ([]models.BorrowingTransaction, error) {
	loans, err := s.store.ListOverdue(asOf)
	if err != nil {
		return nil, unavailable(err)
	}
	return loans, nil
}

// OverdueLoan pairs an overdue transaction with its fee assessment.
type OverdueLoan struct {
	Transaction models.BorrowingTransaction
	Assessment  fees.Assessment
}

// ListOverdueAssessed lists overdue loans with the fee each has accrued as
// of the instant. A non-nil override policy prices the fees for this call
// instead of the service policy; which loans are overdue does not depend on
// policy, only on due dates.
func (s *Service) ListOverdueAssessed(asOf time.Time, override *policy.Policy) ([]OverdueLoan, error) {
	loans, err := s.ListOverdue(asOf)
	if err != nil {
		return nil, err
	}
	p := s.effectivePolicy(override)
	assessed := make([]OverdueLoan, len(loans))
	for i := range loans {
		assessed[i] = OverdueLoan{
			Transaction: loans[i],
			Assessment:  fees.ForTransaction(&loans[i], asOf, p),
		}
	}
	return assessed, nil
}

func (s *Service) effectivePolicy(override *policy.Policy) policy.Policy {
	if override != nil {
		return *override
	}
	return s.policy
}

func (s *Service) memberBlocked(memberUid string) (bool, error) {
	if s.members == nil {
		return false, nil
	}
	if exists, err := s.members.MemberExists(memberUid); err == nil && !exists {
		return false, notFound("member", memberUid)
	}
	// Fail open on directory errors: an unreachable member service must
	// not stop the lending desk.
	blocked, err := s.members.IsBlocked(memberUid)
	if err != nil {
		return false, nil
	}
	return blocked, nil
}

func rejectionFor(elig Eligibility, copyUid, memberUid string, limit int) error {
	for _, reason := range elig.Reasons {
		switch reason {
		case ReasonCopyNotFound:
			return notFound("copy", copyUid)
		case ReasonCopyUnavailable, ReasonCopyOnLoan:
			return conflict("copy", copyUid, "copy is already borrowed")
		case ReasonMemberBlocked:
			return memberBlocked(memberUid)
		case ReasonLoanLimit:
			return limitExceeded(memberUid, limit)
		}
	}
	return invalidInput("borrow request rejected")
}

func mergeNotes(existing, added string) string {
	if added == "" {
		return existing
	}
	if existing == "" {
		return added
	}
	return existing + "; " + added
}
