package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task keys of the answer/default/discovery branch graph.
const (
	TaskConfirmServiceFacts  = "confirm_service_facts"
	TaskWaitForAnswer        = "wait_for_answer"
	TaskCheckDocketForAnswer = "check_docket_for_answer"
	TaskDefaultPacketPrep    = "default_packet_prep"
	TaskUploadAnswer         = "upload_answer"
	TaskDiscoveryStarterPack = "discovery_starter_pack"
)

// TaskStatus is the lifecycle state of a checklist task.
type TaskStatus string

const (
	StatusLocked      TaskStatus = "locked"
	StatusTodo        TaskStatus = "todo"
	StatusInProgress  TaskStatus = "in_progress"
	StatusNeedsReview TaskStatus = "needs_review"
	StatusCompleted   TaskStatus = "completed"
	StatusSkipped     TaskStatus = "skipped"
)

// userTransitions is the table of user-driven transitions. The gatekeeper's
// unlock and auto-complete moves are not part of it.
var userTransitions = map[TaskStatus][]TaskStatus{
	StatusLocked:      nil,
	StatusTodo:        {StatusInProgress, StatusSkipped},
	StatusInProgress:  {StatusNeedsReview, StatusCompleted, StatusSkipped},
	StatusNeedsReview: {StatusCompleted, StatusInProgress},
	StatusCompleted:   nil,
	StatusSkipped:     {StatusTodo},
}

// ParseTaskStatus validates s against the known statuses.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if _, ok := userTransitions[status]; !ok {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return status, nil
}

// IsValidTaskStatus reports whether s names a known status.
func IsValidTaskStatus(s string) bool {
	_, err := ParseTaskStatus(s)
	return err == nil
}

// CanTransition reports whether a user may move a task from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, allowed := range userTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the user-driven targets reachable from status.
func AllowedTransitions(from TaskStatus) []TaskStatus {
	out := make([]TaskStatus, len(userTransitions[from]))
	copy(out, userTransitions[from])
	return out
}

// DocketOutcome is the branch-selecting result of the docket check.
type DocketOutcome string

const (
	DocketOutcomeUnknown       DocketOutcome = ""
	DocketOutcomeNoAnswerFiled DocketOutcome = "no_answer_filed"
	DocketOutcomeAnswerFiled   DocketOutcome = "answer_filed"
)

// ParseDocketOutcome validates s. The empty string is accepted as "not recorded".
func ParseDocketOutcome(s string) (DocketOutcome, error) {
	switch outcome := DocketOutcome(s); outcome {
	case DocketOutcomeUnknown, DocketOutcomeNoAnswerFiled, DocketOutcomeAnswerFiled:
		return outcome, nil
	}
	return "", fmt.Errorf("unknown docket outcome %q", s)
}

// IsRecordableDocketOutcome reports whether s is an outcome a user may record.
func IsRecordableDocketOutcome(s string) bool {
	outcome, err := ParseDocketOutcome(s)
	return err == nil && outcome != DocketOutcomeUnknown
}

// TaskMetadata carries branch-selection facts set outside the gatekeeper.
type TaskMetadata struct {
	DocketOutcome DocketOutcome `json:"docket_outcome,omitempty"`
}

// UnmarshalJSON rejects unknown docket outcomes so a typo cannot slip past the rule table.
func (m *TaskMetadata) UnmarshalJSON(data []byte) error {
	var raw struct {
		DocketOutcome string `json:"docket_outcome"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	outcome, err := ParseDocketOutcome(raw.DocketOutcome)
	if err != nil {
		return err
	}
	m.DocketOutcome = outcome
	return nil
}

// Task is a persisted checklist task snapshot.
type Task struct {
	ID       uuid.UUID
	CaseID   uuid.UUID
	Key      string
	Status   TaskStatus
	DueAt    *time.Time
	Metadata TaskMetadata
}

// TaskSeed describes a task created with a new case.
type TaskSeed struct {
	Key    string
	Status TaskStatus
}

// DefaultTaskPlan is the checklist every new case starts with.
func DefaultTaskPlan() []TaskSeed {
	return []TaskSeed{
		{Key: TaskConfirmServiceFacts, Status: StatusTodo},
		{Key: TaskWaitForAnswer, Status: StatusLocked},
		{Key: TaskCheckDocketForAnswer, Status: StatusLocked},
		{Key: TaskDefaultPacketPrep, Status: StatusLocked},
		{Key: TaskUploadAnswer, Status: StatusLocked},
		{Key: TaskDiscoveryStarterPack, Status: StatusLocked},
	}
}
