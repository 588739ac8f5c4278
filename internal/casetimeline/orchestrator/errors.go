package orchestrator

import (
	"fmt"

	"case_timeline_backend/internal/casetimeline/gatekeeper"

	"github.com/google/uuid"
)

// OrchestrationError is a persistence failure while applying one action.
type OrchestrationError struct {
	CaseID uuid.UUID
	Op     string
	Target string
	Err    error
}

func (e *OrchestrationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("case %s: %s: %v", e.CaseID, e.Op, e.Err)
	}
	return fmt.Sprintf("case %s: %s %s: %v", e.CaseID, e.Op, e.Target, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

func opError(caseID uuid.UUID, op, target string, err error) *OrchestrationError {
	return &OrchestrationError{CaseID: caseID, Op: op, Target: target, Err: err}
}

// ActionOutcome describes one gatekeeper action after the apply step.
type ActionOutcome struct {
	Kind    string
	TaskKey string
	Rule    string
}

const (
	actionUnlock   = "unlock"
	actionComplete = "complete"
)

func outcomeOf(a gatekeeper.Action) ActionOutcome {
	kind := actionUnlock
	if _, ok := a.(gatekeeper.CompleteTask); ok {
		kind = actionComplete
	}
	return ActionOutcome{Kind: kind, TaskKey: a.TaskKey(), Rule: a.RuleID()}
}

// ApplyResult reports what a gatekeeper pass changed. Skipped actions lost an
// optimistic status check to a concurrent writer; Errors never block the
// remaining actions.
type ApplyResult struct {
	Applied []ActionOutcome
	Skipped []ActionOutcome
	Errors  []*OrchestrationError
}

// CaseError is one failed case inside a batch run.
type CaseError struct {
	CaseID uuid.UUID
	Err    error
}

// BatchSummary is the partial-success report of a sweep.
type BatchSummary struct {
	Job       string
	Total     int
	Succeeded int
	Failed    int
	Created   int
	Errors    []CaseError
}
