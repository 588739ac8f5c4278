package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConditionType selects how an escalation rule consults case events.
type ConditionType string

const (
	// ConditionNone always allows the escalation.
	ConditionNone ConditionType = ""
	// ConditionSuppressIfEvent skips the escalation once a matching event exists.
	ConditionSuppressIfEvent ConditionType = "suppress_if_event"
	// ConditionRequireEvent only escalates after a matching event exists.
	ConditionRequireEvent ConditionType = "require_event"
)

// EscalationRule is static configuration; the engine never mutates it.
type EscalationRule struct {
	DeadlineKey     string        `yaml:"deadline_key" json:"deadlineKey"`
	Level           int           `yaml:"level" json:"level"`
	OffsetDays      int           `yaml:"offset_days" json:"offsetDays"`
	ConditionType   ConditionType `yaml:"condition_type" json:"conditionType,omitempty"`
	ConditionKey    string        `yaml:"condition_key" json:"conditionKey,omitempty"`
	MessageTemplate string        `yaml:"message_template" json:"messageTemplate"`
}

// Validate checks a rule for configuration mistakes.
func (r EscalationRule) Validate() error {
	if strings.TrimSpace(r.DeadlineKey) == "" {
		return fmt.Errorf("deadline_key is required")
	}
	if r.Level < 1 || r.Level > 3 {
		return fmt.Errorf("level %d out of range 1..3", r.Level)
	}
	if r.OffsetDays < 0 {
		return fmt.Errorf("offset_days must not be negative")
	}
	switch r.ConditionType {
	case ConditionNone:
		if r.ConditionKey != "" {
			return fmt.Errorf("condition_key %q given without condition_type", r.ConditionKey)
		}
	case ConditionSuppressIfEvent, ConditionRequireEvent:
		if strings.TrimSpace(r.ConditionKey) == "" {
			return fmt.Errorf("condition_type %q requires condition_key", r.ConditionType)
		}
	default:
		return fmt.Errorf("unknown condition_type %q", r.ConditionType)
	}
	if strings.TrimSpace(r.MessageTemplate) == "" {
		return fmt.Errorf("message_template is required")
	}
	return nil
}

// Escalation is a persisted alert for a (deadline, level) pair.
type Escalation struct {
	ID             uuid.UUID
	CaseID         uuid.UUID
	DeadlineID     uuid.UUID
	Level          int
	Message        string
	TriggeredAt    time.Time
	Acknowledged   bool
	AcknowledgedAt *time.Time
}

// Case event kinds written by the orchestrator.
const (
	EventCaseCreated            = "case_created"
	EventServiceFactsConfirmed  = "service_facts_confirmed"
	EventDeadlinesRecomputed    = "deadlines_recomputed"
	EventDeadlineConfirmed      = "deadline_confirmed"
	EventTaskUnlocked           = "task_unlocked"
	EventTaskCompleted          = "task_completed"
	EventTaskStatusChanged      = "task_status_changed"
	EventDocketOutcomeRecorded  = "docket_outcome_recorded"
	EventEscalationTriggered    = "escalation_triggered"
	EventEscalationAcknowledged = "escalation_acknowledged"
	EventReminderSent           = "reminder_sent"
)

// CaseEvent is an append-only audit record. Subject names the task or
// deadline key the event concerns, when there is one.
type CaseEvent struct {
	ID        uuid.UUID
	CaseID    uuid.UUID
	Kind      string
	Subject   string
	ActorID   *uuid.UUID
	Payload   map[string]any
	CreatedAt time.Time
}

// Matches reports whether the event satisfies a condition key of the form
// "kind" or "kind:subject".
func (e CaseEvent) Matches(conditionKey string) bool {
	kind, subject, hasSubject := strings.Cut(conditionKey, ":")
	if e.Kind != kind {
		return false
	}
	return !hasSubject || e.Subject == subject
}
