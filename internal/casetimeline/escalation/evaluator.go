// Package escalation decides when, and how strongly, to alert a case owner
// about an approaching deadline. Evaluate is pure; persistence and delivery
// belong to the orchestrator.
package escalation

import (
	"math"
	"strings"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"

	"github.com/google/uuid"
)

const windowSlack = 24 * time.Hour

// Input is the complete snapshot for one evaluation.
type Input struct {
	Rules     []domain.EscalationRule
	Deadlines []domain.Deadline
	Existing  []domain.Escalation
	Events    []domain.CaseEvent
	Now       time.Time
	// Location is the case's zone, used for dates in messages.
	Location *time.Location
}

// Action is an escalation the orchestrator should create.
type Action struct {
	CaseID     uuid.UUID
	DeadlineID uuid.UUID
	Level      int
	Message    string
}

type dedupKey struct {
	deadlineID uuid.UUID
	level      int
}

// Window returns the range of due times any rule can act on:
// [now, now + max(offset_days) + 1 day]. Callers use it to bound their query.
func Window(rules []domain.EscalationRule, now time.Time) (from, to time.Time) {
	maxOffset := 0
	for _, r := range rules {
		if r.OffsetDays > maxOffset {
			maxOffset = r.OffsetDays
		}
	}
	return now, now.Add(time.Duration(maxOffset)*24*time.Hour + windowSlack)
}

// Evaluate returns the new escalations implied by in. A (deadline, level) pair
// already present in in.Existing is never returned, whether or not that
// escalation was acknowledged.
func Evaluate(in Input) []Action {
	from, to := Window(in.Rules, in.Now)

	seen := make(map[dedupKey]bool, len(in.Existing))
	for _, e := range in.Existing {
		seen[dedupKey{e.DeadlineID, e.Level}] = true
	}

	eventsByCase := make(map[uuid.UUID][]domain.CaseEvent)
	for _, e := range in.Events {
		eventsByCase[e.CaseID] = append(eventsByCase[e.CaseID], e)
	}

	var actions []Action
	for _, d := range in.Deadlines {
		if d.DueAt.Before(from) || d.DueAt.After(to) {
			continue
		}
		remaining := d.DueAt.Sub(in.Now)

		for _, rule := range in.Rules {
			if rule.DeadlineKey != d.Key {
				continue
			}
			if remaining > time.Duration(rule.OffsetDays)*24*time.Hour {
				continue
			}
			key := dedupKey{d.ID, rule.Level}
			if seen[key] {
				continue
			}
			if !conditionAllows(rule, eventsByCase[d.CaseID]) {
				continue
			}

			seen[key] = true
			actions = append(actions, Action{
				CaseID:     d.CaseID,
				DeadlineID: d.ID,
				Level:      rule.Level,
				Message:    Render(rule, d, in.Now, in.Location),
			})
		}
	}
	return actions
}

// SuppressingKinds returns the event kinds named by suppress_if_event
// conditions. An event of such a kind suppresses no matter how old it is.
func SuppressingKinds(rules []domain.EscalationRule) []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, r := range rules {
		if r.ConditionType != domain.ConditionSuppressIfEvent || r.ConditionKey == "" {
			continue
		}
		kind, _, _ := strings.Cut(r.ConditionKey, ":")
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// conditionAllows reports whether the rule's event condition permits firing.
func conditionAllows(rule domain.EscalationRule, events []domain.CaseEvent) bool {
	switch rule.ConditionType {
	case domain.ConditionSuppressIfEvent:
		return !anyMatch(events, rule.ConditionKey)
	case domain.ConditionRequireEvent:
		return anyMatch(events, rule.ConditionKey)
	default:
		return true
	}
}

func anyMatch(events []domain.CaseEvent, key string) bool {
	for _, e := range events {
		if e.Matches(key) {
			return true
		}
	}
	return false
}

func daysRemaining(d domain.Deadline, now time.Time) int {
	return int(math.Ceil(d.DueAt.Sub(now).Hours() / 24))
}
