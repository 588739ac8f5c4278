package email

import (
	"context"
	"time"
)

// ReminderEmail is a heads-up about an upcoming deadline.
type ReminderEmail struct {
	To          string
	CaseTitle   string
	DeadlineKey string
	DueAt       time.Time
	Location    *time.Location
	CaseURL     string
}

// EscalationEmail tells the case owner a deadline needs attention now.
type EscalationEmail struct {
	To        string
	CaseTitle string
	Level     int
	Message   string
	CaseURL   string
}

type Sender interface {
	SendReminderEmail(ctx context.Context, msg ReminderEmail) error
	SendEscalationEmail(ctx context.Context, msg EscalationEmail) error
}

// NoopSender accepts every message without delivering it.
type NoopSender struct{}

func (NoopSender) SendReminderEmail(context.Context, ReminderEmail) error { return nil }

func (NoopSender) SendEscalationEmail(context.Context, EscalationEmail) error { return nil }
