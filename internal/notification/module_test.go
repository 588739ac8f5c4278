package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"case_timeline_backend/internal/email"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/internal/notification/sse"
	"case_timeline_backend/platform/logger"

	"github.com/google/uuid"
)

type testSender struct {
	reminders   []email.ReminderEmail
	escalations []email.EscalationEmail
	err         error
}

func (s *testSender) SendReminderEmail(_ context.Context, msg email.ReminderEmail) error {
	s.reminders = append(s.reminders, msg)
	return s.err
}

func (s *testSender) SendEscalationEmail(_ context.Context, msg email.EscalationEmail) error {
	s.escalations = append(s.escalations, msg)
	return s.err
}

type testRecorder struct {
	calls   int
	lastErr error
	err     error
}

func (r *testRecorder) MarkReminderDelivered(_ context.Context, _ events.ReminderDue, deliveryErr error) error {
	r.calls++
	r.lastErr = deliveryErr
	return r.err
}

func reminderDue(channel string) events.ReminderDue {
	return events.ReminderDue{
		BaseEvent:   events.NewBaseEvent(),
		ReminderID:  uuid.New(),
		DeadlineID:  uuid.New(),
		CaseID:      uuid.New(),
		CaseTitle:   "Smith v. Jones",
		OwnerEmail:  "owner@example.com",
		DeadlineKey: "answer_deadline_estimated",
		DueAt:       time.Date(2026, 2, 10, 7, 59, 0, 0, time.UTC),
		Timezone:    "America/Los_Angeles",
		Channel:     channel,
	}
}

func TestHandleReminderDueRecordsOutcome(t *testing.T) {
	tests := []struct {
		name        string
		channel     string
		sendErr     error
		wantSends   int
		wantFailure bool
	}{
		{"email delivered", "email", nil, 1, false},
		{"email failed", "email", errors.New("smtp down"), 1, true},
		{"unknown channel", "pager", nil, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sender := &testSender{err: tc.sendErr}
			recorder := &testRecorder{}
			m := New(sender, recorder, logger.Discard())
			m.SetAppBaseURL("https://app.example.com/")

			due := reminderDue(tc.channel)
			if err := m.Handle(context.Background(), due); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if len(sender.reminders) != tc.wantSends {
				t.Fatalf("expected %d sends, got %d", tc.wantSends, len(sender.reminders))
			}
			if recorder.calls != 1 {
				t.Fatalf("expected delivery to be recorded once, got %d", recorder.calls)
			}
			if (recorder.lastErr != nil) != tc.wantFailure {
				t.Fatalf("expected failure=%v, recorded %v", tc.wantFailure, recorder.lastErr)
			}
			if tc.wantSends > 0 {
				msg := sender.reminders[0]
				if msg.Location == nil || msg.Location.String() != "America/Los_Angeles" {
					t.Fatalf("expected case location, got %v", msg.Location)
				}
				if msg.CaseURL != "https://app.example.com/cases/"+due.CaseID.String() {
					t.Fatalf("unexpected case url %q", msg.CaseURL)
				}
			}
		})
	}
}

func TestHandleReminderDueReturnsRecorderError(t *testing.T) {
	m := New(&testSender{}, &testRecorder{err: errors.New("db down")}, logger.Discard())
	err := m.Handle(context.Background(), reminderDue("email"))
	if err == nil || !strings.Contains(err.Error(), "record reminder delivery") {
		t.Fatalf("expected recorder error, got %v", err)
	}
}

func TestEscalationEmailsOwnerAndPushesToStream(t *testing.T) {
	sender := &testSender{}
	stream := sse.New(logger.Discard())
	m := New(sender, nil, logger.Discard())
	m.SetStream(stream)

	bus := events.NewInMemoryBus(logger.Discard())
	m.RegisterHandlers(bus)

	e := events.EscalationTriggered{
		BaseEvent:    events.NewBaseEvent(),
		EscalationID: uuid.New(),
		CaseID:       uuid.New(),
		CaseTitle:    "Doe",
		OwnerEmail:   "owner@example.com",
		DeadlineID:   uuid.New(),
		Level:        2,
		Message:      "Answer deadline in 3 days",
	}
	if err := bus.PublishSync(context.Background(), e); err != nil {
		t.Fatalf("PublishSync() error = %v", err)
	}
	if len(sender.escalations) != 1 || sender.escalations[0].Level != 2 {
		t.Fatalf("expected one level 2 escalation email, got %+v", sender.escalations)
	}

	e.OwnerEmail = ""
	if err := m.Handle(context.Background(), e); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(sender.escalations) != 1 {
		t.Fatalf("expected no email without an owner address")
	}
}

func TestNilSenderFallsBackToNoop(t *testing.T) {
	recorder := &testRecorder{}
	m := New(nil, recorder, logger.Discard())
	if err := m.Handle(context.Background(), reminderDue("")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if recorder.lastErr != nil {
		t.Fatalf("expected noop delivery to count as sent, got %v", recorder.lastErr)
	}
}
