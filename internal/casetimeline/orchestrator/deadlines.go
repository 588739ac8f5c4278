package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"case_timeline_backend/internal/casetimeline/deadlines"
	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
)

// RecomputeResult reports a deadline regeneration. Errors holds reminder
// enqueue and audit failures; the deadlines and reminders themselves are
// already stored.
type RecomputeResult struct {
	Deadlines []domain.Deadline
	Reminders []domain.Reminder
	Tasks     ApplyResult
	Errors    []*OrchestrationError
}

// DeadlineResult reports a confirmed deadline write.
type DeadlineResult struct {
	Deadline  domain.Deadline
	Reminders []domain.Reminder
	Tasks     ApplyResult
	Errors    []*OrchestrationError
}

// DeadlineConfirmation is the input for recording an externally confirmed deadline.
type DeadlineConfirmation struct {
	Key    string
	DueAt  time.Time
	Source domain.DeadlineSource
}

// RecomputeDeadlines regenerates the system deadlines of a case from its
// stored service facts. Running it twice yields the same deadlines.
func (s *Service) RecomputeDeadlines(ctx context.Context, caseID uuid.UUID) (RecomputeResult, error) {
	var result RecomputeResult
	err := s.withCaseLock(ctx, caseID, func() error {
		var err error
		result, err = s.recomputeLocked(ctx, caseID)
		return err
	})
	return result, err
}

func (s *Service) recomputeLocked(ctx context.Context, caseID uuid.UUID) (RecomputeResult, error) {
	c, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return RecomputeResult{}, err
	}
	facts, err := s.repo.GetServiceFacts(ctx, caseID)
	if err != nil {
		return RecomputeResult{}, err
	}

	now := s.now()
	computed := deadlines.Compute(facts, c.Location(s.defaultLoc))
	writes := make([]domain.DeadlineWrite, 0, len(computed))
	for _, cd := range computed {
		writes = append(writes, domain.DeadlineWrite{
			CaseID:          caseID,
			Key:             cd.Key,
			DueAt:           cd.DueAt.UTC(),
			Source:          domain.SourceSystem,
			Rationale:       cd.Rationale,
			CalcVersion:     cd.CalcVersion,
			ReminderChannel: s.channel,
			ReminderSends:   deadlines.ScheduleReminders(cd.DueAt, now),
		})
	}

	saved, reminders, err := s.repo.ReplaceSystemDeadlines(ctx, caseID, writes)
	if err != nil {
		return RecomputeResult{}, opError(caseID, "replace system deadlines", "", err)
	}

	result := RecomputeResult{Deadlines: saved, Reminders: reminders}
	result.Errors = s.scheduleReminders(ctx, caseID, reminders)

	if err := s.audit(ctx, caseID, domain.EventDeadlinesRecomputed, "", nil, map[string]any{
		"deadlines":    len(saved),
		"reminders":    len(reminders),
		"calc_version": deadlines.CalcVersion,
	}); err != nil {
		result.Errors = append(result.Errors, opError(caseID, "append event", domain.EventDeadlinesRecomputed, err))
	}
	s.publish(ctx, events.DeadlinesRecomputed{
		BaseEvent:   events.NewBaseEvent(),
		CaseID:      caseID,
		Deadlines:   len(saved),
		Reminders:   len(reminders),
		CalcVersion: deadlines.CalcVersion,
	})
	s.log.CaseAction(caseID.String(), "deadlines_recomputed", "deadlines", len(saved), "reminders", len(reminders))

	result.Tasks, err = s.evaluateLocked(ctx, caseID)
	return result, err
}

// ConfirmDeadline records a user_confirmed or court_notice deadline, schedules
// its reminders and re-runs the gatekeeper. Recomputation never touches it.
func (s *Service) ConfirmDeadline(ctx context.Context, caseID uuid.UUID, in DeadlineConfirmation, actorID *uuid.UUID) (DeadlineResult, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return DeadlineResult{}, apperr.Validation("deadline key is required")
	}
	if !in.Source.IsConfirmed() {
		return DeadlineResult{}, apperr.Validation("source must be user_confirmed or court_notice")
	}
	if in.DueAt.IsZero() {
		return DeadlineResult{}, apperr.Validation("due date is required")
	}

	var result DeadlineResult
	err := s.withCaseLock(ctx, caseID, func() error {
		if _, err := s.repo.GetCase(ctx, caseID); err != nil {
			return err
		}

		dueAt := in.DueAt.UTC()
		d, reminders, err := s.repo.UpsertConfirmedDeadline(ctx, domain.DeadlineWrite{
			CaseID:          caseID,
			Key:             key,
			DueAt:           dueAt,
			Source:          in.Source,
			Rationale:       fmt.Sprintf("Confirmed from %s", strings.ReplaceAll(string(in.Source), "_", " ")),
			ReminderChannel: s.channel,
			ReminderSends:   deadlines.ScheduleReminders(dueAt, s.now()),
		})
		if err != nil {
			return opError(caseID, "store confirmed deadline", key, err)
		}

		result = DeadlineResult{Deadline: d, Reminders: reminders}
		result.Errors = s.scheduleReminders(ctx, caseID, reminders)

		if err := s.audit(ctx, caseID, domain.EventDeadlineConfirmed, key, actorID, map[string]any{
			"due_at": dueAt.Format(time.RFC3339),
			"source": string(in.Source),
		}); err != nil {
			result.Errors = append(result.Errors, opError(caseID, "append event", key, err))
		}

		result.Tasks, err = s.evaluateLocked(ctx, caseID)
		return err
	})
	return result, err
}

// ListDeadlines returns the deadlines of a case and their reminders.
func (s *Service) ListDeadlines(ctx context.Context, caseID uuid.UUID) ([]domain.Deadline, []domain.Reminder, error) {
	if _, err := s.repo.GetCase(ctx, caseID); err != nil {
		return nil, nil, err
	}
	ds, err := s.repo.ListDeadlines(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	rs, err := s.repo.ListReminders(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return ds, rs, nil
}
