package escalation

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
)

// MessageData is the value message templates are executed against.
type MessageData struct {
	DeadlineKey   string
	DueDate       string
	DueAt         string
	DaysRemaining int
	Level         int
}

func parseTemplate(rule domain.EscalationRule) (*template.Template, error) {
	name := fmt.Sprintf("%s/%d", rule.DeadlineKey, rule.Level)
	return template.New(name).Option("missingkey=error").Parse(rule.MessageTemplate)
}

// Render executes the rule's message template for d. Dates are shown in loc,
// the case's zone; a nil loc keeps the zone DueAt carries. A template that
// fails to execute yields its raw text so an alert is never lost to a
// formatting bug.
func Render(rule domain.EscalationRule, d domain.Deadline, now time.Time, loc *time.Location) string {
	tmpl, err := parseTemplate(rule)
	if err != nil {
		return rule.MessageTemplate
	}

	dueAt := d.DueAt
	if loc != nil {
		dueAt = dueAt.In(loc)
	}

	var b strings.Builder
	err = tmpl.Execute(&b, MessageData{
		DeadlineKey:   d.Key,
		DueDate:       domain.LocalDateOf(dueAt).String(),
		DueAt:         dueAt.Format(time.RFC3339),
		DaysRemaining: daysRemaining(d, now),
		Level:         rule.Level,
	})
	if err != nil {
		return rule.MessageTemplate
	}
	return b.String()
}
