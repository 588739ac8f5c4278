// Package notification delivers reminder and escalation emails and pushes
// live case updates, all in response to domain events.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"case_timeline_backend/internal/email"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/internal/notification/sse"
	"case_timeline_backend/platform/logger"

	"github.com/google/uuid"
)

// DeliveryRecorder stores the outcome of a reminder send.
type DeliveryRecorder interface {
	MarkReminderDelivered(ctx context.Context, due events.ReminderDue, deliveryErr error) error
}

// Module subscribes to case events and delivers them to people.
type Module struct {
	sender   email.Sender
	recorder DeliveryRecorder
	stream   *sse.Service
	baseURL  string
	log      *logger.Logger
}

// New creates the notification module. recorder may be nil in processes that
// never deliver reminders.
func New(sender email.Sender, recorder DeliveryRecorder, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &Module{
		sender:   sender,
		recorder: recorder,
		log:      log,
	}
}

// SetStream enables live pushes to SSE clients.
func (m *Module) SetStream(s *sse.Service) { m.stream = s }

// SetAppBaseURL sets the link target used in emails.
func (m *Module) SetAppBaseURL(u string) { m.baseURL = strings.TrimRight(u, "/") }

// RegisterHandlers subscribes the module to the events it delivers.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.ReminderDue{}.EventName(), m)
	bus.Subscribe(events.EscalationTriggered{}.EventName(), m)

	bus.Subscribe(events.DeadlinesRecomputed{}.EventName(), m)
	bus.Subscribe(events.TaskUnlocked{}.EventName(), m)
	bus.Subscribe(events.TaskCompleted{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ReminderDue:
		return m.handleReminderDue(ctx, e)
	case events.EscalationTriggered:
		return m.handleEscalationTriggered(ctx, e)
	case events.DeadlinesRecomputed:
		m.push(sse.EventDeadlinesRecomputed, e.CaseID, map[string]any{
			"deadlines":   e.Deadlines,
			"reminders":   e.Reminders,
			"calcVersion": e.CalcVersion,
		})
	case events.TaskUnlocked:
		m.push(sse.EventTaskUnlocked, e.CaseID, map[string]any{"taskKey": e.TaskKey, "dueAt": e.DueAt})
	case events.TaskCompleted:
		m.push(sse.EventTaskCompleted, e.CaseID, map[string]any{"taskKey": e.TaskKey})
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
	}
	return nil
}

// handleReminderDue sends the email and records the outcome. A failed send is
// recorded on the reminder and not retried; a failed record is returned so the
// queue retries the whole delivery.
func (m *Module) handleReminderDue(ctx context.Context, e events.ReminderDue) error {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		loc = time.UTC
	}

	var sendErr error
	switch e.Channel {
	case "", "email":
		sendErr = m.sender.SendReminderEmail(ctx, email.ReminderEmail{
			To:          e.OwnerEmail,
			CaseTitle:   e.CaseTitle,
			DeadlineKey: e.DeadlineKey,
			DueAt:       e.DueAt,
			Location:    loc,
			CaseURL:     m.caseURL(e.CaseID),
		})
	default:
		sendErr = fmt.Errorf("unsupported reminder channel %q", e.Channel)
	}
	if sendErr != nil {
		m.log.Warn("reminder delivery failed", "caseId", e.CaseID, "reminderId", e.ReminderID, "error", sendErr)
	}

	if m.recorder == nil {
		return sendErr
	}
	if err := m.recorder.MarkReminderDelivered(ctx, e, sendErr); err != nil {
		return fmt.Errorf("record reminder delivery: %w", err)
	}
	return nil
}

func (m *Module) handleEscalationTriggered(ctx context.Context, e events.EscalationTriggered) error {
	m.push(sse.EventEscalation, e.CaseID, map[string]any{
		"escalationId": e.EscalationID,
		"deadlineId":   e.DeadlineID,
		"level":        e.Level,
		"message":      e.Message,
	})

	if e.OwnerEmail == "" {
		return nil
	}
	err := m.sender.SendEscalationEmail(ctx, email.EscalationEmail{
		To:        e.OwnerEmail,
		CaseTitle: e.CaseTitle,
		Level:     e.Level,
		Message:   e.Message,
		CaseURL:   m.caseURL(e.CaseID),
	})
	if err != nil {
		return fmt.Errorf("send escalation email: %w", err)
	}
	return nil
}

func (m *Module) push(t sse.EventType, caseID uuid.UUID, data any) {
	if m.stream == nil {
		return
	}
	m.stream.Publish(sse.Event{Type: t, CaseID: caseID, Data: data})
}

func (m *Module) caseURL(caseID uuid.UUID) string {
	if m.baseURL == "" {
		return ""
	}
	return m.baseURL + "/cases/" + caseID.String()
}
