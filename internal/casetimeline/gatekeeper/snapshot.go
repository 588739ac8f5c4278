package gatekeeper

import (
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
)

// Snapshot is the read-only input of one evaluation.
type Snapshot struct {
	Tasks     []domain.Task
	Deadlines []domain.Deadline
	Now       time.Time
}

// View indexes a Snapshot for rule predicates. It is built once per evaluation
// and never updated while rules run.
type View struct {
	now             time.Time
	tasks           map[string]domain.Task
	confirmedAnswer *domain.Deadline
}

func newView(s Snapshot) View {
	v := View{
		now:   s.Now,
		tasks: make(map[string]domain.Task, len(s.Tasks)),
	}
	for _, t := range s.Tasks {
		v.tasks[t.Key] = t
	}
	v.confirmedAnswer = confirmedAnswerDeadline(s.Deadlines)
	return v
}

// confirmedAnswerDeadline prefers a court notice over a user confirmation and,
// within the same source, the later due time.
func confirmedAnswerDeadline(deadlines []domain.Deadline) *domain.Deadline {
	var best *domain.Deadline
	for i := range deadlines {
		d := deadlines[i]
		if d.Key != domain.KeyAnswerDeadlineConfirmed || !d.Source.IsConfirmed() {
			continue
		}
		switch {
		case best == nil:
			best = &d
		case d.Source == domain.SourceCourtNotice && best.Source != domain.SourceCourtNotice:
			best = &d
		case d.Source == best.Source && d.DueAt.After(best.DueAt):
			best = &d
		}
	}
	return best
}

// Now is the evaluation instant.
func (v View) Now() time.Time { return v.now }

// TaskStatus returns the status of key and whether the task exists.
func (v View) TaskStatus(key string) (domain.TaskStatus, bool) {
	t, ok := v.tasks[key]
	return t.Status, ok
}

// TaskIs reports whether key exists and has one of the given statuses.
func (v View) TaskIs(key string, statuses ...domain.TaskStatus) bool {
	status, ok := v.TaskStatus(key)
	if !ok {
		return false
	}
	for _, s := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

// DocketOutcome returns the recorded outcome on key's metadata.
func (v View) DocketOutcome(key string) domain.DocketOutcome {
	return v.tasks[key].Metadata.DocketOutcome
}

// ConfirmedAnswerDeadline returns the confirmed answer deadline, if any.
func (v View) ConfirmedAnswerDeadline() (domain.Deadline, bool) {
	if v.confirmedAnswer == nil {
		return domain.Deadline{}, false
	}
	return *v.confirmedAnswer, true
}

// AnswerDeadlinePassed reports whether a confirmed answer deadline exists and is due.
func (v View) AnswerDeadlinePassed() bool {
	d, ok := v.ConfirmedAnswerDeadline()
	return ok && !d.DueAt.After(v.now)
}
