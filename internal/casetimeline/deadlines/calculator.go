// Package deadlines derives legally significant dates from confirmed service
// facts and schedules reminders for them. Everything here is pure: no I/O, no
// wall clock, and the calendar is always supplied by the caller.
package deadlines

import (
	"fmt"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
)

// CalcVersion tags every computed deadline with the rule revision that produced it.
const CalcVersion = "answer-rules/2026.1"

const (
	answerPeriodDays   = 14
	docketCheckLagDays = 7
	defaultInfoLagDays = 1
	answerDueHour      = 10
)

// Compute returns the system deadlines implied by facts, in the stated
// calendar loc. It returns nil when the served date is absent.
func Compute(facts domain.ServiceFacts, loc *time.Location) []domain.ComputedDeadline {
	if facts.ServedAt == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	served := *facts.ServedAt
	raw := served.AddDays(answerPeriodDays)
	answer := NextMonday10am(raw, loc)

	out := make([]domain.ComputedDeadline, 0, 3)
	out = append(out, domain.ComputedDeadline{
		Key:   domain.KeyAnswerDeadlineEstimated,
		DueAt: answer,
		Rationale: fmt.Sprintf(
			"Served %s; %d calendar days later is %s (%s). Rounded forward to the next Monday at %02d:00 %s, keeping the same day when it is already a Monday.",
			served, answerPeriodDays, raw, raw.Weekday(), answerDueHour, loc,
		),
		CalcVersion: CalcVersion,
	})

	if facts.ReturnFiledAt != nil {
		filed := *facts.ReturnFiledAt
		earliest := filed.AddDays(defaultInfoLagDays)
		out = append(out, domain.ComputedDeadline{
			Key:   domain.KeyDefaultEarliestInfo,
			DueAt: earliest.At(0, 0, loc),
			Rationale: fmt.Sprintf(
				"Proof of service filed %s; default information is available from the start of the next calendar day, %s.",
				filed, earliest,
			),
			CalcVersion: CalcVersion,
		})
	}

	docketCheck := domain.LocalDateOf(answer).AddDays(docketCheckLagDays).At(answerDueHour, 0, loc)
	out = append(out, domain.ComputedDeadline{
		Key:   domain.KeyCheckDocketAfterAnswer,
		DueAt: docketCheck,
		Rationale: fmt.Sprintf(
			"Check the docket %d days after the estimated answer deadline (%s) to see whether an answer was filed.",
			docketCheckLagDays, domain.LocalDateOf(answer),
		),
		CalcVersion: CalcVersion,
	})

	return out
}

// NextMonday10am returns 10:00 in loc on d when d is a Monday, otherwise on the
// first Monday after d. It never moves backward.
func NextMonday10am(d domain.LocalDate, loc *time.Location) time.Time {
	shift := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	return d.AddDays(shift).At(answerDueHour, 0, loc)
}
