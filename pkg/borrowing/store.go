package borrowing

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"library-system/pkg/models"
)

// Store is the durable record of loan episodes. "Active" in every query
// below means stored status ACTIVE, which covers derived-overdue loans too.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx rebinds the store to a running transaction handle.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// LockMember serializes borrows for one member for the rest of the current
// transaction. The member-cap check is count-then-insert, which is write
// skew under READ COMMITTED: two borrows for the same member on different
// copies share no row for the ledger CAS to collide on. Postgres takes a
// transaction-scoped advisory lock keyed on the member uid; sqlite has a
// single writer, so transactions are already serialized.
func (s *Store) LockMember(memberUid string) error {
	if s.db.Dialector.Name() != "postgres" {
		return nil
	}
	return s.db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", memberUid).Error
}

func (s *Store) ByUid(transactionUid string) (*models.BorrowingTransaction, error) {
	var t models.BorrowingTransaction
	if err := s.db.Where("transaction_uid = ?", transactionUid).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ActiveForMember(memberUid string) ([]models.BorrowingTransaction, error) {
	var loans []models.BorrowingTransaction
	err := s.db.
		Where("member_uid = ? AND status = ?", memberUid, models.TransactionStatusActive).
		Order("due_date").
		Find(&loans).Error
	return loans, err
}

// ActiveForCopy returns the single open loan for a copy, or nil when the
// copy is not on loan.
func (s *Store) ActiveForCopy(copyUid string) (*models.BorrowingTransaction, error) {
	var t models.BorrowingTransaction
	err := s.db.
		Where("copy_uid = ? AND status = ?", copyUid, models.TransactionStatusActive).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CountActiveForMember(memberUid string) (int64, error) {
	var count int64
	err := s.db.Model(&models.BorrowingTransaction{}).
		Where("member_uid = ? AND status = ?", memberUid, models.TransactionStatusActive).
		Count(&count).Error
	return count, err
}

// ListOverdue returns open loans whose due date falls on an earlier
// calendar day than asOf. The cutoff is asOf truncated to midnight UTC, so
// a loan is overdue from the first day after its due date.
func (s *Store) ListOverdue(asOf time.Time) ([]models.BorrowingTransaction, error) {
	y, m, d := asOf.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var loans []models.BorrowingTransaction
	err := s.db.
		Where("status = ? AND due_date < ?", models.TransactionStatusActive, cutoff).
		Order("due_date").
		Find(&loans).Error
	return loans, err
}

func (s *Store) HistoryForMember(memberUid string) ([]models.BorrowingTransaction, error) {
	var loans []models.BorrowingTransaction
	err := s.db.
		Where("member_uid = ?", memberUid).
		Order("borrow_date").
		Find(&loans).Error
	return loans, err
}
