package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"case_timeline_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender delivers reminder and escalation emails over SMTP via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// NewSender returns an SMTP sender when SMTP is configured and a NoopSender
// otherwise.
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.IsSMTPEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendReminderEmail(ctx context.Context, m ReminderEmail) error {
	subject, content, err := renderReminder(m)
	if err != nil {
		return err
	}
	return s.send(ctx, m.To, subject, content)
}

func (s *SMTPSender) SendEscalationEmail(ctx context.Context, m EscalationEmail) error {
	subject, content, err := renderEscalation(m)
	if err != nil {
		return err
	}
	return s.send(ctx, m.To, subject, content)
}

func renderReminder(m ReminderEmail) (string, string, error) {
	label := deadlineLabel(m.DeadlineKey)
	content, err := renderEmailTemplate("reminder.html", reminderEmailData{
		baseEmailData: baseEmailData{
			Title:    "Upcoming deadline",
			Heading:  label,
			CTALabel: "Open case",
			CTAURL:   m.CaseURL,
		},
		CaseTitle:     m.CaseTitle,
		DeadlineLabel: label,
		DueFormatted:  formatDue(m.DueAt, m.Location),
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectReminderFmt, m.CaseTitle, label), content, nil
}

func renderEscalation(m EscalationEmail) (string, string, error) {
	content, err := renderEmailTemplate("escalation.html", escalationEmailData{
		baseEmailData: baseEmailData{
			Title:    "Action needed",
			Heading:  "Action needed",
			CTALabel: "Open case",
			CTAURL:   m.CaseURL,
		},
		CaseTitle: m.CaseTitle,
		Level:     m.Level,
		Message:   m.Message,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectEscalationFmt, m.Level, m.CaseTitle), content, nil
}
