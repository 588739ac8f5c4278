package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderReminderUsesCaseCalendar(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}

	subject, body, err := renderReminder(ReminderEmail{
		To:          "owner@example.com",
		CaseTitle:   "Smith v. Jones",
		DeadlineKey: "answer_due",
		DueAt:       time.Date(2026, 2, 10, 7, 59, 0, 0, time.UTC),
		Location:    la,
		CaseURL:     "https://app.example.com/cases/1",
	})
	if err != nil {
		t.Fatalf("renderReminder() error = %v", err)
	}
	if subject != "Upcoming deadline for Smith v. Jones: Answer due" {
		t.Fatalf("unexpected subject %q", subject)
	}
	// 07:59 UTC is still the previous evening in Los Angeles.
	if !strings.Contains(body, "Monday, February 9, 2026 at 11:59 PM PST") {
		t.Fatalf("expected local due time in body, got:\n%s", body)
	}
	if !strings.Contains(body, "https://app.example.com/cases/1") {
		t.Fatalf("expected case link in body")
	}
}

func TestRenderEscalationEscapesMessage(t *testing.T) {
	subject, body, err := renderEscalation(EscalationEmail{
		CaseTitle: "Doe",
		Level:     3,
		Message:   "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("renderEscalation() error = %v", err)
	}
	if subject != "Action needed (level 3): Doe" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if strings.Contains(body, "<script>") {
		t.Fatalf("expected message to be escaped")
	}
	if strings.Contains(body, "Open case</a>") {
		t.Fatalf("expected no call to action without a case url")
	}
}

func TestDeadlineLabel(t *testing.T) {
	tests := map[string]string{
		"answer_due":         "Answer due",
		"default_eligible":   "Default eligible",
		"":                   "",
		"proof_of_service_x": "Proof of service x",
	}
	for in, want := range tests {
		if got := deadlineLabel(in); got != want {
			t.Errorf("deadlineLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
