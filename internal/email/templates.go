package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type reminderEmailData struct {
	baseEmailData
	CaseTitle     string
	DeadlineLabel string
	DueFormatted  string
}

type escalationEmailData struct {
	baseEmailData
	CaseTitle string
	Level     int
	Message   string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// deadlineLabel turns "answer_due" into "Answer due".
func deadlineLabel(key string) string {
	label := strings.ReplaceAll(key, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

// formatDue renders the due time on the case's own calendar.
func formatDue(dueAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return dueAt.In(loc).Format("Monday, January 2, 2006 at 3:04 PM MST")
}
