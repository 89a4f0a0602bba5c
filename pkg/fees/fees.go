// Package fees computes late fees under the grace-period policy. The
// calculation is a pure function of dates and policy so it can be applied
// to open loans (asOf = now) and closed loans (asOf = return date) alike.
package fees

import (
	"time"

	"library-system/pkg/models"
	"library-system/pkg/policy"
)

type Assessment struct {
	DaysOverdue    int     `json:"daysOverdue"`
	FeeAmount      float64 `json:"feeAmount"`
	WithinGrace    bool    `json:"withinGrace"`
	GraceRemaining int     `json:"graceRemaining"`
}

// Assess evaluates the fee for a loan due at dueDate. A non-nil returnDate
// pins the evaluation to the return date regardless of asOf: a loan
// returned late owes exactly what it owed on the day it came back.
func Assess(dueDate time.Time, returnDate *time.Time, asOf time.Time, p policy.Policy) Assessment {
	ref := asOf
	if returnDate != nil {
		ref = *returnDate
	}
	days := models.DaysBetween(dueDate, ref)
	if days < 0 {
		days = 0
	}

	a := Assessment{DaysOverdue: days}
	switch {
	case days == 0:
		a.WithinGrace = true
		a.GraceRemaining = p.GracePeriodDays
	case days <= p.GracePeriodDays:
		a.WithinGrace = true
		a.GraceRemaining = p.GracePeriodDays - days
	case days == p.GracePeriodDays+1:
		a.FeeAmount = p.BaseLateFee
	default:
		a.FeeAmount = p.BaseLateFee + float64(days-p.GracePeriodDays-1)*p.DailyLateFee
	}
	if a.FeeAmount > p.MaxLateFee {
		a.FeeAmount = p.MaxLateFee
	}
	return a
}

// ForTransaction assesses one loan record.
func ForTransaction(t *models.BorrowingTransaction, asOf time.Time, p policy.Policy) Assessment {
	return Assess(t.DueDate, t.ReturnDate, asOf, p)
}
