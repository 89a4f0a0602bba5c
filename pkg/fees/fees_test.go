package fees

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"library-system/pkg/policy"
)

var due = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() policy.Policy {
	p := policy.Default()
	p.GracePeriodDays = 3
	p.BaseLateFee = 1.0
	p.DailyLateFee = 0.5
	p.MaxLateFee = 25.0
	return p
}

func TestAssessBeforeDueDate(t *testing.T) {
	a := Assess(due, nil, due.AddDate(0, 0, -5), testPolicy())

	assert.Equal(t, 0, a.DaysOverdue)
	assert.Equal(t, 0.0, a.FeeAmount)
	assert.True(t, a.WithinGrace)
	assert.Equal(t, 3, a.GraceRemaining)
}

func TestAssessWithinGrace(t *testing.T) {
	a := Assess(due, nil, due.AddDate(0, 0, 2), testPolicy())

	assert.Equal(t, 2, a.DaysOverdue)
	assert.Equal(t, 0.0, a.FeeAmount)
	assert.True(t, a.WithinGrace)
	assert.Equal(t, 1, a.GraceRemaining)
}

func TestAssessLastGraceDay(t *testing.T) {
	a := Assess(due, nil, due.AddDate(0, 0, 3), testPolicy())

	assert.Equal(t, 0.0, a.FeeAmount)
	assert.True(t, a.WithinGrace)
	assert.Equal(t, 0, a.GraceRemaining)
}

func TestAssessFirstBillableDay(t *testing.T) {
	a := Assess(due, nil, due.AddDate(0, 0, 4), testPolicy())

	assert.Equal(t, 4, a.DaysOverdue)
	assert.False(t, a.WithinGrace)
	assert.InDelta(t, 1.0, a.FeeAmount, 1e-9)
}

func TestAssessTenDaysOverdue(t *testing.T) {
	a := Assess(due, nil, due.AddDate(0, 0, 10), testPolicy())

	assert.Equal(t, 10, a.DaysOverdue)
	assert.False(t, a.WithinGrace)
	assert.InDelta(t, 4.0, a.FeeAmount, 1e-9)
}

func TestAssessFeeCapped(t *testing.T) {
	a := Assess(due, nil, due.AddDate(0, 0, 365), testPolicy())

	assert.InDelta(t, 25.0, a.FeeAmount, 1e-9)
}

func TestAssessMonotonicAsTimeAdvances(t *testing.T) {
	p := testPolicy()
	previous := 0.0
	for days := 0; days <= 90; days++ {
		a := Assess(due, nil, due.AddDate(0, 0, days), p)
		assert.GreaterOrEqual(t, a.FeeAmount, previous, "fee regressed at day %d", days)
		assert.LessOrEqual(t, a.FeeAmount, p.MaxLateFee)
		if days <= p.GracePeriodDays {
			assert.Equal(t, 0.0, a.FeeAmount, "fee charged inside grace at day %d", days)
		}
		previous = a.FeeAmount
	}
}

func TestAssessReturnedLoanPinnedToReturnDate(t *testing.T) {
	returned := due.AddDate(0, 0, 10)

	late := Assess(due, &returned, due.AddDate(0, 0, 40), testPolicy())
	assert.Equal(t, 10, late.DaysOverdue)
	assert.InDelta(t, 4.0, late.FeeAmount, 1e-9)

	// Same fee it would have been assessed on the return day itself.
	onReturnDay := Assess(due, nil, returned, testPolicy())
	assert.Equal(t, onReturnDay.FeeAmount, late.FeeAmount)
}

func TestAssessReturnedOnTime(t *testing.T) {
	returned := due.AddDate(0, 0, -1)
	a := Assess(due, &returned, due.AddDate(0, 0, 100), testPolicy())

	assert.Equal(t, 0, a.DaysOverdue)
	assert.Equal(t, 0.0, a.FeeAmount)
}
