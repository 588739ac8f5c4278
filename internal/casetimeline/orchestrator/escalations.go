package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/casetimeline/escalation"
	"case_timeline_backend/internal/events"

	"github.com/google/uuid"
)

// RunEscalationSweep evaluates the escalation rules for every case with a
// deadline inside the rule window.
func (s *Service) RunEscalationSweep(ctx context.Context) (BatchSummary, error) {
	now := s.now()
	from, to := escalation.Window(s.escalationRules, now)

	due, err := s.repo.ListDeadlinesDueBetween(ctx, from, to)
	if err != nil {
		return BatchSummary{Job: JobEscalationSweep}, fmt.Errorf("list deadlines due between %s and %s: %w", from, to, err)
	}

	seen := make(map[uuid.UUID]bool)
	caseIDs := make([]uuid.UUID, 0)
	for _, d := range due {
		if !seen[d.CaseID] {
			seen[d.CaseID] = true
			caseIDs = append(caseIDs, d.CaseID)
		}
	}

	return s.runBatch(ctx, JobEscalationSweep, caseIDs, func(ctx context.Context, caseID uuid.UUID) (int, error) {
		return s.escalateCase(ctx, caseID)
	}), nil
}

// escalateCase re-reads the case under its lock so the snapshot cannot race a
// concurrent recomputation.
func (s *Service) escalateCase(ctx context.Context, caseID uuid.UUID) (int, error) {
	created := 0
	err := s.withCaseLock(ctx, caseID, func() error {
		c, err := s.repo.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		ds, err := s.repo.ListDeadlines(ctx, caseID)
		if err != nil {
			return err
		}
		existing, err := s.repo.ListEscalations(ctx, caseID)
		if err != nil {
			return err
		}

		now := s.now()
		evs, err := s.conditionEvents(ctx, caseID, now)
		if err != nil {
			return err
		}

		actions := escalation.Evaluate(escalation.Input{
			Rules:     s.escalationRules,
			Deadlines: ds,
			Existing:  existing,
			Events:    evs,
			Now:       now,
			Location:  c.Location(s.defaultLoc),
		})

		keys := make(map[uuid.UUID]string, len(ds))
		for _, d := range ds {
			keys[d.ID] = d.Key
		}

		var errs []error
		for _, action := range actions {
			esc := domain.Escalation{
				ID:          uuid.New(),
				CaseID:      action.CaseID,
				DeadlineID:  action.DeadlineID,
				Level:       action.Level,
				Message:     action.Message,
				TriggeredAt: now.UTC(),
			}
			target := fmt.Sprintf("%s level %d", keys[action.DeadlineID], action.Level)

			inserted, err := s.repo.CreateEscalation(ctx, esc)
			if err != nil {
				errs = append(errs, opError(caseID, "create escalation", target, err))
				continue
			}
			if !inserted {
				continue
			}
			created++
			s.log.CaseAction(caseID.String(), "escalation_triggered", "deadline", keys[action.DeadlineID], "level", action.Level)

			if err := s.audit(ctx, caseID, domain.EventEscalationTriggered, keys[action.DeadlineID], nil, map[string]any{
				"escalation_id": esc.ID.String(),
				"deadline_id":   esc.DeadlineID.String(),
				"level":         esc.Level,
			}); err != nil {
				errs = append(errs, opError(caseID, "append event", target, err))
			}
			s.publish(ctx, events.EscalationTriggered{
				BaseEvent:    events.NewBaseEvent(),
				EscalationID: esc.ID,
				CaseID:       caseID,
				CaseTitle:    c.Title,
				OwnerEmail:   c.OwnerEmail,
				DeadlineID:   esc.DeadlineID,
				Level:        esc.Level,
				Message:      esc.Message,
			})
		}
		return errors.Join(errs...)
	})
	return created, err
}

// conditionEvents returns the events rule conditions are checked against:
// everything inside the lookback window plus every event of a suppressing
// kind, so a recorded outcome keeps suppressing after the window has passed.
func (s *Service) conditionEvents(ctx context.Context, caseID uuid.UUID, now time.Time) ([]domain.CaseEvent, error) {
	recent, err := s.repo.ListEventsSince(ctx, caseID, now.Add(-s.lookback))
	if err != nil {
		return nil, err
	}
	kinds := escalation.SuppressingKinds(s.escalationRules)
	if len(kinds) == 0 {
		return recent, nil
	}
	old, err := s.repo.ListEventsOfKinds(ctx, caseID, kinds)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(recent))
	for _, e := range recent {
		seen[e.ID] = true
	}
	for _, e := range old {
		if !seen[e.ID] {
			recent = append(recent, e)
		}
	}
	return recent, nil
}

// ListEscalations returns all escalations of a case.
func (s *Service) ListEscalations(ctx context.Context, caseID uuid.UUID) ([]domain.Escalation, error) {
	if _, err := s.repo.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListEscalations(ctx, caseID)
}

// AcknowledgeEscalation marks one escalation as seen. It does not suppress
// other levels for the same deadline. Acknowledging twice is harmless, so a
// failed audit write is returned for the caller to retry.
func (s *Service) AcknowledgeEscalation(ctx context.Context, caseID, escalationID uuid.UUID, actorID *uuid.UUID) (domain.Escalation, error) {
	var esc domain.Escalation
	err := s.withCaseLock(ctx, caseID, func() error {
		var err error
		esc, err = s.repo.AcknowledgeEscalation(ctx, caseID, escalationID, s.now().UTC())
		if err != nil {
			return err
		}
		if err := s.audit(ctx, caseID, domain.EventEscalationAcknowledged, escalationID.String(), actorID, map[string]any{
			"level": esc.Level,
		}); err != nil {
			return opError(caseID, "append event", escalationID.String(), err)
		}
		return nil
	})
	return esc, err
}

// ListEvents returns the most recent audit events of a case.
func (s *Service) ListEvents(ctx context.Context, caseID uuid.UUID, limit int) ([]domain.CaseEvent, error) {
	if _, err := s.repo.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListRecentEvents(ctx, caseID, limit)
}
