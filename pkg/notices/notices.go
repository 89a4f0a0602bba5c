// Package notices decides when overdue notices are due. Delivery belongs
// to a reporting collaborator; this queue only schedules.
package notices

import (
	"fmt"
	"sync"
	"time"

	"library-system/pkg/borrowing"
	"library-system/pkg/models"
	"library-system/pkg/policy"
)

// Notice marks that the member should be notified about an overdue loan at
// DueAt, OffsetDays after the loan's due date.
type Notice struct {
	TransactionUid string    `json:"transactionUid"`
	MemberUid      string    `json:"memberUid"`
	CopyUid        string    `json:"copyUid"`
	OffsetDays     int       `json:"offsetDays"`
	DueAt          time.Time `json:"dueAt"`
}

// Plan expands a loan's due date by the policy's notification offsets.
// Offsets count days after due, anchored at midnight UTC of the due date.
func Plan(t *models.BorrowingTransaction, p policy.Policy) []Notice {
	y, m, d := t.DueDate.UTC().Date()
	dueMidnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	planned := make([]Notice, 0, len(p.NotificationOffsets))
	for _, offset := range p.NotificationOffsets {
		planned = append(planned, Notice{
			TransactionUid: t.TransactionUid,
			MemberUid:      t.MemberUid,
			CopyUid:        t.CopyUid,
			OffsetDays:     offset,
			DueAt:          dueMidnight.AddDate(0, 0, offset),
		})
	}
	return planned
}

// Scheduler queues planned notices and releases the ones whose time has
// come. Each (transaction, offset) pair is enqueued at most once.
type Scheduler struct {
	mu      sync.Mutex
	pending []Notice
	seen    map[string]bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{seen: make(map[string]bool)}
}

func (s *Scheduler) Enqueue(notices ...Notice) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, n := range notices {
		key := fmt.Sprintf("%s/%d", n.TransactionUid, n.OffsetDays)
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		s.pending = append(s.pending, n)
		added++
	}
	return added
}

// DueNow removes and returns every pending notice whose DueAt has passed.
func (s *Scheduler) DueNow(asOf time.Time) []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Notice
	kept := s.pending[:0]
	for _, n := range s.pending {
		if !n.DueAt.After(asOf) {
			due = append(due, n)
		} else {
			kept = append(kept, n)
		}
	}
	s.pending = kept
	return due
}

func (s *Scheduler) Pending() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notice, len(s.pending))
	copy(out, s.pending)
	return out
}

func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SweepOverdue plans and enqueues notices for every loan overdue as of the
// instant. The sweep is a read-only pass over the store; it mutates nothing
// but this queue. Returns how many notices were newly enqueued.
func (s *Scheduler) SweepOverdue(svc *borrowing.Service, p policy.Policy, asOf time.Time) (int, error) {
	overdue, err := svc.ListOverdue(asOf)
	if err != nil {
		return 0, err
	}
	added := 0
	for i := range overdue {
		for _, n := range Plan(&overdue[i], p) {
			if n.DueAt.After(asOf) {
				continue
			}
			added += s.Enqueue(n)
		}
	}
	return added, nil
}
