// Package ledger is the authoritative record of each copy's lending state.
// Reserve and Release are the only mutations of copy status anywhere in the
// system, and both are single guarded UPDATEs so a racing caller loses
// cleanly instead of corrupting state.
package ledger

import (
	"errors"

	"gorm.io/gorm"

	"library-system/pkg/models"
)

var (
	ErrCopyNotFound    = errors.New("copy not found")
	ErrCopyUnavailable = errors.New("copy is already borrowed")
	ErrCopyNotBorrowed = errors.New("copy is not on loan")
)

// Status returns the copy's lending status.
func Status(db *gorm.DB, copyUid string) (string, error) {
	var copy models.Copy
	if err := db.Where("copy_uid = ?", copyUid).First(&copy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrCopyNotFound
		}
		return "", err
	}
	return copy.Status, nil
}

// Reserve flips the copy AVAILABLE -> BORROWED. The status predicate lives
// in the UPDATE itself, so of two concurrent reservations exactly one sees
// a row affected.
func Reserve(db *gorm.DB, copyUid string) error {
	res := db.Model(&models.Copy{}).
		Where("copy_uid = ? AND status = ?", copyUid, models.CopyStatusAvailable).
		Update("status", models.CopyStatusBorrowed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := Status(db, copyUid); err != nil {
			return err
		}
		return ErrCopyUnavailable
	}
	return nil
}

// Release flips the copy BORROWED -> AVAILABLE.
func Release(db *gorm.DB, copyUid string) error {
	res := db.Model(&models.Copy{}).
		Where("copy_uid = ? AND status = ?", copyUid, models.CopyStatusBorrowed).
		Update("status", models.CopyStatusAvailable)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := Status(db, copyUid); err != nil {
			return err
		}
		return ErrCopyNotBorrowed
	}
	return nil
}
