// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"case_timeline_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Case Timeline Events
// =============================================================================

// ServiceFactsConfirmed is published after service facts are stored for a case.
type ServiceFactsConfirmed struct {
	BaseEvent
	CaseID  uuid.UUID  `json:"caseId"`
	ActorID *uuid.UUID `json:"actorId,omitempty"`
}

func (e ServiceFactsConfirmed) EventName() string { return "casetimeline.service_facts.confirmed" }

// DeadlinesRecomputed is published after the system deadlines of a case were replaced.
type DeadlinesRecomputed struct {
	BaseEvent
	CaseID      uuid.UUID `json:"caseId"`
	Deadlines   int       `json:"deadlines"`
	Reminders   int       `json:"reminders"`
	CalcVersion string    `json:"calcVersion"`
}

func (e DeadlinesRecomputed) EventName() string { return "casetimeline.deadlines.recomputed" }

// TaskUnlocked is published when the gatekeeper makes a task actionable.
type TaskUnlocked struct {
	BaseEvent
	CaseID  uuid.UUID  `json:"caseId"`
	TaskKey string     `json:"taskKey"`
	DueAt   *time.Time `json:"dueAt,omitempty"`
	Rule    string     `json:"rule"`
}

func (e TaskUnlocked) EventName() string { return "casetimeline.task.unlocked" }

// TaskCompleted is published when the gatekeeper auto-completes a task.
type TaskCompleted struct {
	BaseEvent
	CaseID  uuid.UUID `json:"caseId"`
	TaskKey string    `json:"taskKey"`
	Rule    string    `json:"rule"`
}

func (e TaskCompleted) EventName() string { return "casetimeline.task.completed" }

// ReminderDue is published by the scheduler worker when a pending reminder fires.
type ReminderDue struct {
	BaseEvent
	ReminderID  uuid.UUID `json:"reminderId"`
	DeadlineID  uuid.UUID `json:"deadlineId"`
	CaseID      uuid.UUID `json:"caseId"`
	CaseTitle   string    `json:"caseTitle"`
	OwnerEmail  string    `json:"ownerEmail"`
	DeadlineKey string    `json:"deadlineKey"`
	DueAt       time.Time `json:"dueAt"`
	Timezone    string    `json:"timezone"`
	Channel     string    `json:"channel"`
}

func (e ReminderDue) EventName() string { return "casetimeline.reminder.due" }

// EscalationTriggered is published for every escalation the sweep persists.
type EscalationTriggered struct {
	BaseEvent
	EscalationID uuid.UUID `json:"escalationId"`
	CaseID       uuid.UUID `json:"caseId"`
	CaseTitle    string    `json:"caseTitle"`
	OwnerEmail   string    `json:"ownerEmail"`
	DeadlineID   uuid.UUID `json:"deadlineId"`
	Level        int       `json:"level"`
	Message      string    `json:"message"`
}

func (e EscalationTriggered) EventName() string { return "casetimeline.escalation.triggered" }
