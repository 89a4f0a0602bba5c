package models

import (
	"time"
)

const (
	CopyStatusAvailable = "AVAILABLE"
	CopyStatusBorrowed  = "BORROWED"
)

const (
	TransactionStatusActive   = "ACTIVE"
	TransactionStatusOverdue  = "OVERDUE"
	TransactionStatusReturned = "RETURNED"
)

// Copy is one physical, lendable instance of a catalog item. The catalog
// service owns the book record; this service owns the lending state.
type Copy struct {
	ID         uint   `gorm:"primaryKey"`
	CopyUid    string `gorm:"type:uuid;uniqueIndex;not null"`
	BookUid    string `gorm:"type:uuid;index;not null"`
	CopyNumber string `gorm:"size:40"`
	Status     string `gorm:"size:20;not null;default:'AVAILABLE'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BorrowingTransaction is one loan episode. Rows are append-only history:
// the only mutations are the return transition and note merging. OVERDUE is
// never stored, see EffectiveStatus.
type BorrowingTransaction struct {
	ID             uint      `gorm:"primaryKey"`
	TransactionUid string    `gorm:"type:uuid;uniqueIndex;not null"`
	CopyUid        string    `gorm:"type:uuid;index;not null"`
	MemberUid      string    `gorm:"size:80;index;not null"`
	BorrowDate     time.Time `gorm:"not null"`
	DueDate        time.Time `gorm:"index;not null"`
	ReturnDate     *time.Time
	Status         string `gorm:"size:20;index;not null"`
	Notes          string `gorm:"size:255"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Open reports whether the loan has not been returned yet.
func (t *BorrowingTransaction) Open() bool {
	return t.Status == TransactionStatusActive
}

// EffectiveStatus derives OVERDUE for an open loan whose due date has
// passed. Stored status stays ACTIVE so there is no refresh pass to go
// stale.
func (t *BorrowingTransaction) EffectiveStatus(asOf time.Time) string {
	if t.Open() && DaysBetween(t.DueDate, asOf) > 0 {
		return TransactionStatusOverdue
	}
	return t.Status
}

// DaysBetween counts calendar days from a to b, negative when b precedes a.
// Comparison is on UTC dates, not 24h intervals.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
