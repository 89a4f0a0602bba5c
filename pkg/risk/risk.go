// Package risk scores a member's reliability from their full borrowing
// history.
//
// The repeat-offender score blends four components on a 0-100 scale:
//
//	0.40 × overdue rate
//	0.30 × average days overdue, capped at 30 days
//	0.20 × grace violations, capped at 5
//	0.10 × currently overdue loans, capped at 3
//
// The weights and caps define the score's scale; changing them rescales
// every stored threshold downstream.
package risk

import (
	"math"
	"time"

	"library-system/pkg/fees"
	"library-system/pkg/models"
	"library-system/pkg/policy"
)

const (
	LevelLow      = "LOW"
	LevelMedium   = "MEDIUM"
	LevelHigh     = "HIGH"
	LevelCritical = "CRITICAL"
)

// Risk level cutoffs on the repeat-offender score. Single source of truth:
// every call site classifies through LevelFor, nothing compares raw counts.
const (
	criticalCutoff = 75
	highCutoff     = 50
	mediumCutoff   = 25
)

type Profile struct {
	MemberUid           string  `json:"memberUid"`
	TotalTransactions   int     `json:"totalTransactions"`
	OverdueRate         float64 `json:"overdueRate"`
	AverageDaysOverdue  float64 `json:"averageDaysOverdue"`
	GraceViolations     int     `json:"graceViolations"`
	CurrentOverdueCount int     `json:"currentOverdueCount"`
	ReliabilityScore    int     `json:"reliabilityScore"`
	RepeatOffenderScore int     `json:"repeatOffenderScore"`
	RiskLevel           string  `json:"riskLevel"`
	SuspendRecommended  bool    `json:"suspendRecommended"`
}

// Score aggregates a member's transaction history into a risk profile.
// A member with no history is perfectly reliable and low risk.
func Score(memberUid string, history []models.BorrowingTransaction, asOf time.Time, p policy.Policy) Profile {
	prof := Profile{
		MemberUid:         memberUid,
		TotalTransactions: len(history),
		ReliabilityScore:  100,
		RiskLevel:         LevelLow,
	}
	if len(history) == 0 {
		return prof
	}

	overdueCount := 0
	overdueDaysSum := 0
	for i := range history {
		t := &history[i]
		a := fees.ForTransaction(t, asOf, p)
		if a.DaysOverdue == 0 {
			continue
		}
		overdueCount++
		overdueDaysSum += a.DaysOverdue
		if a.DaysOverdue > p.GracePeriodDays {
			prof.GraceViolations++
		}
		if t.Open() {
			prof.CurrentOverdueCount++
			if p.AutoSuspendDays > 0 && a.DaysOverdue > p.AutoSuspendDays {
				prof.SuspendRecommended = true
			}
		}
	}

	prof.OverdueRate = 100 * float64(overdueCount) / float64(len(history))
	if overdueCount > 0 {
		prof.AverageDaysOverdue = float64(overdueDaysSum) / float64(overdueCount)
	}
	prof.ReliabilityScore = clampScore(int(math.Round(100 - prof.OverdueRate)))

	blend := 0.4*prof.OverdueRate +
		0.3*math.Min(prof.AverageDaysOverdue/30, 1)*100 +
		0.2*math.Min(float64(prof.GraceViolations)/5, 1)*100 +
		0.1*math.Min(float64(prof.CurrentOverdueCount)/3, 1)*100
	prof.RepeatOffenderScore = int(math.Round(math.Min(blend, 100)))
	prof.RiskLevel = LevelFor(prof.RepeatOffenderScore)
	return prof
}

// LevelFor classifies a repeat-offender score.
func LevelFor(score int) string {
	switch {
	case score >= criticalCutoff:
		return LevelCritical
	case score >= highCutoff:
		return LevelHigh
	case score >= mediumCutoff:
		return LevelMedium
	default:
		return LevelLow
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
