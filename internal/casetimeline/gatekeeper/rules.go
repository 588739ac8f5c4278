package gatekeeper

import "case_timeline_backend/internal/casetimeline/domain"

// Rule pairs a predicate over the snapshot with the action it yields.
type Rule struct {
	ID   string
	When func(v View) bool
	Then func(v View) Action
}

// unlockWhenCompleted unlocks next once prev is completed with the given outcome.
// An empty outcome means any outcome.
func unlockWhenCompleted(id, prev string, outcome domain.DocketOutcome, next string) Rule {
	return Rule{
		ID: id,
		When: func(v View) bool {
			if !v.TaskIs(prev, domain.StatusCompleted) || !v.TaskIs(next, domain.StatusLocked) {
				return false
			}
			return outcome == domain.DocketOutcomeUnknown || v.DocketOutcome(prev) == outcome
		},
		Then: func(View) Action { return UnlockTask{Key: next, Rule: id} },
	}
}

var defaultRules = []Rule{
	{
		ID: "unlock_wait_for_answer",
		When: func(v View) bool {
			_, ok := v.ConfirmedAnswerDeadline()
			return ok && v.TaskIs(domain.TaskWaitForAnswer, domain.StatusLocked)
		},
		Then: func(v View) Action {
			d, _ := v.ConfirmedAnswerDeadline()
			due := d.DueAt
			return UnlockTask{Key: domain.TaskWaitForAnswer, DueAt: &due, Rule: "unlock_wait_for_answer"}
		},
	},
	{
		ID: "complete_wait_for_answer",
		When: func(v View) bool {
			return v.AnswerDeadlinePassed() &&
				v.TaskIs(domain.TaskWaitForAnswer, domain.StatusTodo, domain.StatusInProgress)
		},
		Then: func(View) Action {
			return CompleteTask{Key: domain.TaskWaitForAnswer, Rule: "complete_wait_for_answer"}
		},
	},
	{
		ID: "unlock_check_docket",
		When: func(v View) bool {
			return v.AnswerDeadlinePassed() && v.TaskIs(domain.TaskCheckDocketForAnswer, domain.StatusLocked)
		},
		Then: func(View) Action {
			return UnlockTask{Key: domain.TaskCheckDocketForAnswer, Rule: "unlock_check_docket"}
		},
	},
	unlockWhenCompleted("unlock_default_packet", domain.TaskCheckDocketForAnswer, domain.DocketOutcomeNoAnswerFiled, domain.TaskDefaultPacketPrep),
	unlockWhenCompleted("unlock_upload_answer", domain.TaskCheckDocketForAnswer, domain.DocketOutcomeAnswerFiled, domain.TaskUploadAnswer),
	unlockWhenCompleted("unlock_discovery", domain.TaskUploadAnswer, domain.DocketOutcomeUnknown, domain.TaskDiscoveryStarterPack),
}

// DefaultRules returns a copy of the production rule table.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
