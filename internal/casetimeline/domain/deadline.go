package domain

import (
	"time"

	"github.com/google/uuid"
)

// Deadline keys produced or recognised by the engine.
const (
	KeyAnswerDeadlineEstimated = "answer_deadline_estimated"
	KeyDefaultEarliestInfo     = "default_earliest_info"
	KeyCheckDocketAfterAnswer  = "check_docket_after_answer_deadline"
	KeyAnswerDeadlineConfirmed = "answer_deadline_confirmed"
)

// DeadlineSource records the provenance of a deadline.
type DeadlineSource string

const (
	SourceSystem        DeadlineSource = "system"
	SourceUserConfirmed DeadlineSource = "user_confirmed"
	SourceCourtNotice   DeadlineSource = "court_notice"
)

// Valid reports whether s is a known source.
func (s DeadlineSource) Valid() bool {
	switch s {
	case SourceSystem, SourceUserConfirmed, SourceCourtNotice:
		return true
	}
	return false
}

// IsConfirmed reports whether the deadline was confirmed outside the engine.
func (s DeadlineSource) IsConfirmed() bool {
	return s == SourceUserConfirmed || s == SourceCourtNotice
}

// Deadline is a persisted deadline snapshot.
type Deadline struct {
	ID          uuid.UUID
	CaseID      uuid.UUID
	Key         string
	DueAt       time.Time
	Source      DeadlineSource
	Rationale   string
	CalcVersion string
}

// ComputedDeadline is the Deadline Calculator's output, before persistence.
type ComputedDeadline struct {
	Key         string
	DueAt       time.Time
	Rationale   string
	CalcVersion string
}

// ReminderStatus tracks delivery of a reminder.
type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

// Reminder is a scheduled notification for a deadline.
type Reminder struct {
	ID         uuid.UUID
	DeadlineID uuid.UUID
	Channel    string
	SendAt     time.Time
	Status     ReminderStatus
	LastError  string
}

// DeadlineWrite is a deadline about to be persisted together with the send
// times of its reminders.
type DeadlineWrite struct {
	CaseID          uuid.UUID
	Key             string
	DueAt           time.Time
	Source          DeadlineSource
	Rationale       string
	CalcVersion     string
	ReminderChannel string
	ReminderSends   []time.Time
}

// ReminderDispatch is everything needed to deliver one reminder.
type ReminderDispatch struct {
	Reminder Reminder
	Deadline Deadline
	Case     Case
}

// SystemDeadlinePlan is how a recomputed set of system deadlines maps onto the
// stored one. Kept rows keep their ID so escalations raised against them stay
// attached; a deadline whose due time moved is a new row.
type SystemDeadlinePlan struct {
	Kept   map[int]Deadline // write index -> stored row it reconfirms
	Insert []int            // write indexes needing a new row
	Stale  []uuid.UUID      // stored rows no write reconfirms
}

// PlanSystemDeadlines matches writes to stored system deadlines on key and
// due instant.
func PlanSystemDeadlines(stored []Deadline, writes []DeadlineWrite) SystemDeadlinePlan {
	byKey := make(map[string]Deadline, len(stored))
	for _, d := range stored {
		byKey[d.Key] = d
	}

	plan := SystemDeadlinePlan{Kept: make(map[int]Deadline)}
	for i, w := range writes {
		d, ok := byKey[w.Key]
		if ok && d.DueAt.Equal(w.DueAt) {
			plan.Kept[i] = d
			delete(byKey, w.Key)
			continue
		}
		plan.Insert = append(plan.Insert, i)
	}
	for _, d := range stored {
		if rest, ok := byKey[d.Key]; ok && rest.ID == d.ID {
			plan.Stale = append(plan.Stale, d.ID)
		}
	}
	return plan
}

// ReminderPlan is how the wanted send times of a deadline map onto its stored
// reminders.
type ReminderPlan struct {
	Kept    []Reminder
	Missing []time.Time
	Stale   []uuid.UUID
}

// PlanReminders keeps stored reminders whose channel and send time are still
// wanted. Delivered or failed reminders that are no longer wanted stay as
// history; only pending ones are reported stale.
func PlanReminders(stored []Reminder, channel string, sends []time.Time) ReminderPlan {
	used := make([]bool, len(stored))
	var plan ReminderPlan
	for _, at := range sends {
		found := false
		for i, rem := range stored {
			if !used[i] && rem.Channel == channel && rem.SendAt.Equal(at) {
				used[i] = true
				plan.Kept = append(plan.Kept, rem)
				found = true
				break
			}
		}
		if !found {
			plan.Missing = append(plan.Missing, at)
		}
	}
	for i, rem := range stored {
		if !used[i] && rem.Status == ReminderPending {
			plan.Stale = append(plan.Stale, rem.ID)
		}
	}
	return plan
}
