package orchestrator

import (
	"context"
	"errors"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"

	"github.com/google/uuid"
)

// Repository is the persistence port of the orchestrator. Implementations
// must make ReplaceSystemDeadlines atomic.
type Repository interface {
	// CreateCase stores the case, its task plan and the created event atomically.
	CreateCase(ctx context.Context, c domain.Case, plan []domain.TaskSeed, created domain.CaseEvent) (domain.Case, error)
	GetCase(ctx context.Context, caseID uuid.UUID) (domain.Case, error)
	ListActiveCaseIDs(ctx context.Context) ([]uuid.UUID, error)

	GetServiceFacts(ctx context.Context, caseID uuid.UUID) (domain.ServiceFacts, error)
	UpsertServiceFacts(ctx context.Context, caseID uuid.UUID, facts domain.ServiceFacts, actorID *uuid.UUID) error

	// ReplaceSystemDeadlines makes the system-sourced deadlines of the case
	// equal writes in a single transaction. Rows with an unchanged key and due
	// instant keep their ID; the rest are deleted (reminders and escalations
	// cascade) or inserted.
	ReplaceSystemDeadlines(ctx context.Context, caseID uuid.UUID, writes []domain.DeadlineWrite) ([]domain.Deadline, []domain.Reminder, error)
	// UpsertConfirmedDeadline stores a user_confirmed or court_notice deadline
	// and replaces its reminders.
	UpsertConfirmedDeadline(ctx context.Context, write domain.DeadlineWrite) (domain.Deadline, []domain.Reminder, error)
	ListDeadlines(ctx context.Context, caseID uuid.UUID) ([]domain.Deadline, error)
	ListDeadlinesDueBetween(ctx context.Context, from, to time.Time) ([]domain.Deadline, error)
	ListReminders(ctx context.Context, caseID uuid.UUID) ([]domain.Reminder, error)
	GetReminderDispatch(ctx context.Context, reminderID uuid.UUID) (domain.ReminderDispatch, error)
	MarkReminder(ctx context.Context, reminderID uuid.UUID, status domain.ReminderStatus, lastError string) error

	ListTasks(ctx context.Context, caseID uuid.UUID) ([]domain.Task, error)
	// TransitionTask moves a task to next only if it is still in expected.
	// It reports false when the row changed underneath the caller.
	TransitionTask(ctx context.Context, caseID uuid.UUID, taskKey string, expected, next domain.TaskStatus, dueAt *time.Time) (bool, error)
	UpdateTaskMetadata(ctx context.Context, caseID uuid.UUID, taskKey string, metadata domain.TaskMetadata) error

	ListEscalations(ctx context.Context, caseID uuid.UUID) ([]domain.Escalation, error)
	// CreateEscalation reports false when the (deadline, level) pair already exists.
	CreateEscalation(ctx context.Context, e domain.Escalation) (bool, error)
	AcknowledgeEscalation(ctx context.Context, caseID, escalationID uuid.UUID, at time.Time) (domain.Escalation, error)

	AppendEvent(ctx context.Context, e domain.CaseEvent) error
	ListEventsSince(ctx context.Context, caseID uuid.UUID, since time.Time) ([]domain.CaseEvent, error)
	// ListEventsOfKinds ignores event age.
	ListEventsOfKinds(ctx context.Context, caseID uuid.UUID, kinds []string) ([]domain.CaseEvent, error)
	ListRecentEvents(ctx context.Context, caseID uuid.UUID, limit int) ([]domain.CaseEvent, error)
}

// CaseLocker serializes mutating work on a single case.
type CaseLocker interface {
	Lock(ctx context.Context, caseID uuid.UUID) (unlock func(), err error)
}

// ErrReminderAlreadyQueued is returned by a ReminderScheduler when the queue
// already holds a task for the reminder.
var ErrReminderAlreadyQueued = errors.New("reminder already queued")

// ReminderScheduler queues a reminder for delivery at its send time.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, reminder domain.Reminder) error
}
