package orchestrator

import (
	"context"
	"errors"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
)

func (s *Service) scheduleReminders(ctx context.Context, caseID uuid.UUID, reminders []domain.Reminder) []*OrchestrationError {
	if s.reminders == nil {
		return nil
	}

	var errs []*OrchestrationError
	for _, r := range reminders {
		if r.Status != domain.ReminderPending {
			continue
		}
		err := s.reminders.ScheduleReminder(ctx, r)
		if errors.Is(err, ErrReminderAlreadyQueued) {
			continue
		}
		if err != nil {
			s.log.Warn("reminder enqueue failed", "caseId", caseID, "reminderId", r.ID, "error", err)
			errs = append(errs, opError(caseID, "schedule reminder", r.ID.String(), err))
		}
	}
	return errs
}

// DispatchReminder runs when a queued reminder fires. Reminders deleted by a
// recomputation, or already delivered, are skipped.
func (s *Service) DispatchReminder(ctx context.Context, reminderID uuid.UUID) error {
	dispatch, err := s.repo.GetReminderDispatch(ctx, reminderID)
	if apperr.Is(err, apperr.KindNotFound) {
		s.log.Debug("reminder superseded", "reminderId", reminderID)
		return nil
	}
	if err != nil {
		return err
	}
	if dispatch.Reminder.Status != domain.ReminderPending {
		return nil
	}
	if s.bus == nil {
		return nil
	}

	return s.bus.PublishSync(ctx, events.ReminderDue{
		BaseEvent:   events.NewBaseEvent(),
		ReminderID:  dispatch.Reminder.ID,
		DeadlineID:  dispatch.Deadline.ID,
		CaseID:      dispatch.Case.ID,
		CaseTitle:   dispatch.Case.Title,
		OwnerEmail:  dispatch.Case.OwnerEmail,
		DeadlineKey: dispatch.Deadline.Key,
		DueAt:       dispatch.Deadline.DueAt,
		Timezone:    dispatch.Case.Location(s.defaultLoc).String(),
		Channel:     dispatch.Reminder.Channel,
	})
}

// AbandonReminder marks a still pending reminder failed once its queue task
// has no retries left, so the overdue scan stops picking it up.
func (s *Service) AbandonReminder(ctx context.Context, reminderID uuid.UUID, cause error) error {
	dispatch, err := s.repo.GetReminderDispatch(ctx, reminderID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if dispatch.Reminder.Status != domain.ReminderPending {
		return nil
	}

	lastError := "delivery abandoned after retries"
	if cause != nil {
		lastError += ": " + cause.Error()
	}
	s.log.Warn("reminder abandoned", "caseId", dispatch.Case.ID, "reminderId", reminderID, "error", cause)
	return s.repo.MarkReminder(ctx, reminderID, domain.ReminderFailed, lastError)
}

// MarkReminderDelivered records the delivery outcome of a reminder.
func (s *Service) MarkReminderDelivered(ctx context.Context, due events.ReminderDue, deliveryErr error) error {
	status := domain.ReminderSent
	lastError := ""
	if deliveryErr != nil {
		status = domain.ReminderFailed
		lastError = deliveryErr.Error()
	}

	if err := s.repo.MarkReminder(ctx, due.ReminderID, status, lastError); err != nil {
		return err
	}
	if deliveryErr != nil {
		return nil
	}
	return s.audit(ctx, due.CaseID, domain.EventReminderSent, due.DeadlineKey, nil, map[string]any{
		"reminder_id": due.ReminderID.String(),
		"channel":     due.Channel,
	})
}
