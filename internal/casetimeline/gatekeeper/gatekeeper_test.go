package gatekeeper

import (
	"reflect"
	"testing"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)

func tasks(statuses map[string]domain.TaskStatus) []domain.Task {
	out := make([]domain.Task, 0, len(statuses))
	for _, seed := range domain.DefaultTaskPlan() {
		status, ok := statuses[seed.Key]
		if !ok {
			status = seed.Status
		}
		out = append(out, domain.Task{ID: uuid.New(), Key: seed.Key, Status: status})
	}
	return out
}

func withOutcome(ts []domain.Task, key string, outcome domain.DocketOutcome) []domain.Task {
	for i := range ts {
		if ts[i].Key == key {
			ts[i].Metadata.DocketOutcome = outcome
		}
	}
	return ts
}

func confirmed(due time.Time, source domain.DeadlineSource) domain.Deadline {
	return domain.Deadline{ID: uuid.New(), Key: domain.KeyAnswerDeadlineConfirmed, DueAt: due, Source: source}
}

func TestEvaluateSinglePassOnlyUnlocksWaitForAnswer(t *testing.T) {
	due := testNow.Add(72 * time.Hour)
	s := Snapshot{
		Tasks:     tasks(nil),
		Deadlines: []domain.Deadline{confirmed(due, domain.SourceUserConfirmed)},
		Now:       testNow,
	}

	got := Evaluate(s)
	if len(got) != 1 {
		t.Fatalf("expected exactly one action, got %#v", got)
	}
	unlock, ok := got[0].(UnlockTask)
	if !ok || unlock.Key != domain.TaskWaitForAnswer {
		t.Fatalf("expected unlock of wait_for_answer, got %#v", got[0])
	}
	if unlock.DueAt == nil || !unlock.DueAt.Equal(due) {
		t.Fatalf("expected due_at %s, got %v", due, unlock.DueAt)
	}
}

func TestEvaluateIgnoresSystemEstimate(t *testing.T) {
	s := Snapshot{
		Tasks: tasks(nil),
		Deadlines: []domain.Deadline{{
			ID: uuid.New(), Key: domain.KeyAnswerDeadlineEstimated, DueAt: testNow.Add(time.Hour), Source: domain.SourceSystem,
		}},
		Now: testNow,
	}

	if got := Evaluate(s); len(got) != 0 {
		t.Fatalf("system estimates must not unlock tasks, got %#v", got)
	}
}

func TestEvaluatePassedDeadlineCompletesWaitAndUnlocksDocket(t *testing.T) {
	s := Snapshot{
		Tasks:     tasks(map[string]domain.TaskStatus{domain.TaskWaitForAnswer: domain.StatusInProgress}),
		Deadlines: []domain.Deadline{confirmed(testNow, domain.SourceCourtNotice)},
		Now:       testNow,
	}

	got := Evaluate(s)
	want := []Action{
		CompleteTask{Key: domain.TaskWaitForAnswer, Rule: "complete_wait_for_answer"},
		UnlockTask{Key: domain.TaskCheckDocketForAnswer, Rule: "unlock_check_docket"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestEvaluateDoesNotChainWithinOnePass(t *testing.T) {
	// wait_for_answer is still locked, so R2 cannot see the unlock R1 produces.
	s := Snapshot{
		Tasks:     tasks(nil),
		Deadlines: []domain.Deadline{confirmed(testNow.Add(-time.Hour), domain.SourceUserConfirmed)},
		Now:       testNow,
	}

	for _, a := range Evaluate(s) {
		if _, ok := a.(CompleteTask); ok {
			t.Fatalf("complete must not fire in the same pass as unlock: %#v", a)
		}
	}
}

func TestEvaluateDocketBranches(t *testing.T) {
	done := map[string]domain.TaskStatus{
		domain.TaskWaitForAnswer:        domain.StatusCompleted,
		domain.TaskCheckDocketForAnswer: domain.StatusCompleted,
	}

	tests := []struct {
		name    string
		outcome domain.DocketOutcome
		want    []Action
	}{
		{"no answer filed", domain.DocketOutcomeNoAnswerFiled, []Action{UnlockTask{Key: domain.TaskDefaultPacketPrep, Rule: "unlock_default_packet"}}},
		{"answer filed", domain.DocketOutcomeAnswerFiled, []Action{UnlockTask{Key: domain.TaskUploadAnswer, Rule: "unlock_upload_answer"}}},
		{"outcome not recorded", domain.DocketOutcomeUnknown, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := Snapshot{
				Tasks: withOutcome(tasks(done), domain.TaskCheckDocketForAnswer, tc.outcome),
				Now:   testNow,
			}
			if got := Evaluate(s); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestEvaluateUnlocksDiscoveryAfterAnswerUpload(t *testing.T) {
	s := Snapshot{
		Tasks: tasks(map[string]domain.TaskStatus{
			domain.TaskWaitForAnswer:        domain.StatusCompleted,
			domain.TaskCheckDocketForAnswer: domain.StatusCompleted,
			domain.TaskUploadAnswer:         domain.StatusCompleted,
		}),
		Now: testNow,
	}
	s.Tasks = withOutcome(s.Tasks, domain.TaskCheckDocketForAnswer, domain.DocketOutcomeAnswerFiled)

	got := Evaluate(s)
	want := []Action{UnlockTask{Key: domain.TaskDiscoveryStarterPack, Rule: "unlock_discovery"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestEvaluateIsPureAndIdempotentAfterApply(t *testing.T) {
	s := Snapshot{
		Tasks:     tasks(nil),
		Deadlines: []domain.Deadline{confirmed(testNow.Add(48*time.Hour), domain.SourceUserConfirmed)},
		Now:       testNow,
	}

	first := Evaluate(s)
	for i := 0; i < 5; i++ {
		if again := Evaluate(s); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differed: %#v vs %#v", i, first, again)
		}
	}

	// Once the unlock is persisted the same rule no longer fires.
	applied := tasks(map[string]domain.TaskStatus{domain.TaskWaitForAnswer: domain.StatusTodo})
	s.Tasks = applied
	if got := Evaluate(s); len(got) != 0 {
		t.Fatalf("expected no actions after apply, got %#v", got)
	}
}

func TestConfirmedAnswerDeadlinePrefersCourtNotice(t *testing.T) {
	user := confirmed(testNow.Add(96*time.Hour), domain.SourceUserConfirmed)
	court := confirmed(testNow.Add(24*time.Hour), domain.SourceCourtNotice)

	got := confirmedAnswerDeadline([]domain.Deadline{user, court})
	if got == nil || got.ID != court.ID {
		t.Fatalf("expected court notice to win, got %#v", got)
	}

	later := confirmed(testNow.Add(120*time.Hour), domain.SourceUserConfirmed)
	got = confirmedAnswerDeadline([]domain.Deadline{user, later})
	if got == nil || got.ID != later.ID {
		t.Fatalf("expected later user confirmation to win, got %#v", got)
	}
}

func TestEvaluateRulesAcceptsCustomTable(t *testing.T) {
	rules := append(DefaultRules(), unlockWhenCompleted("unlock_custom", domain.TaskDefaultPacketPrep, domain.DocketOutcomeUnknown, "file_default_request"))
	s := Snapshot{
		Tasks: append(tasks(map[string]domain.TaskStatus{domain.TaskDefaultPacketPrep: domain.StatusCompleted}),
			domain.Task{Key: "file_default_request", Status: domain.StatusLocked}),
		Now: testNow,
	}

	got := EvaluateRules(rules, s)
	want := []Action{UnlockTask{Key: "file_default_request", Rule: "unlock_custom"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}
