package gatekeeper

import "time"

// Action is a state change the orchestrator should apply.
// It is either UnlockTask or CompleteTask.
type Action interface {
	TaskKey() string
	RuleID() string
	isAction()
}

// UnlockTask moves a task from locked to todo, optionally setting its due time.
type UnlockTask struct {
	Key   string
	DueAt *time.Time
	Rule  string
}

func (a UnlockTask) TaskKey() string { return a.Key }
func (a UnlockTask) RuleID() string  { return a.Rule }
func (UnlockTask) isAction()         {}

// CompleteTask moves a task from todo or in_progress to completed.
type CompleteTask struct {
	Key  string
	Rule string
}

func (a CompleteTask) TaskKey() string { return a.Key }
func (a CompleteTask) RuleID() string  { return a.Rule }
func (CompleteTask) isAction()         {}
