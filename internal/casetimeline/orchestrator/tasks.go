package orchestrator

import (
	"context"
	"fmt"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/casetimeline/gatekeeper"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
)

// TaskUpdateResult reports a user-driven task change and the gatekeeper pass
// that followed it.
type TaskUpdateResult struct {
	Task  domain.Task
	Tasks ApplyResult
	// Errors holds failures to record the change itself; the change is stored.
	Errors []*OrchestrationError
}

// EvaluateTasks runs one gatekeeper pass for a case and applies its actions.
func (s *Service) EvaluateTasks(ctx context.Context, caseID uuid.UUID) (ApplyResult, error) {
	var result ApplyResult
	err := s.withCaseLock(ctx, caseID, func() error {
		var err error
		result, err = s.evaluateLocked(ctx, caseID)
		return err
	})
	return result, err
}

// evaluateLocked is a single pass. Multi-hop progress happens on the next
// mutation or sweep, never inside one call.
func (s *Service) evaluateLocked(ctx context.Context, caseID uuid.UUID) (ApplyResult, error) {
	tasks, err := s.repo.ListTasks(ctx, caseID)
	if err != nil {
		return ApplyResult{}, err
	}
	ds, err := s.repo.ListDeadlines(ctx, caseID)
	if err != nil {
		return ApplyResult{}, err
	}

	actions := gatekeeper.EvaluateRules(s.gateRules, gatekeeper.Snapshot{
		Tasks:     tasks,
		Deadlines: ds,
		Now:       s.now(),
	})
	return s.apply(ctx, caseID, tasks, actions), nil
}

// apply persists each action with an optimistic status check. A failed or
// skipped action never prevents the others.
func (s *Service) apply(ctx context.Context, caseID uuid.UUID, tasks []domain.Task, actions []gatekeeper.Action) ApplyResult {
	current := make(map[string]domain.TaskStatus, len(tasks))
	for _, t := range tasks {
		current[t.Key] = t.Status
	}

	var result ApplyResult
	for _, action := range actions {
		outcome := outcomeOf(action)

		var (
			ok  bool
			err error
		)
		switch a := action.(type) {
		case gatekeeper.UnlockTask:
			ok, err = s.repo.TransitionTask(ctx, caseID, a.Key, domain.StatusLocked, domain.StatusTodo, a.DueAt)
		case gatekeeper.CompleteTask:
			ok, err = s.repo.TransitionTask(ctx, caseID, a.Key, current[a.Key], domain.StatusCompleted, nil)
		default:
			err = fmt.Errorf("unsupported action %T", action)
		}
		if err != nil {
			result.Errors = append(result.Errors, opError(caseID, outcome.Kind+" task", outcome.TaskKey, err))
			continue
		}
		if !ok {
			result.Skipped = append(result.Skipped, outcome)
			continue
		}

		result.Applied = append(result.Applied, outcome)
		s.log.CaseAction(caseID.String(), outcome.Kind, "task", outcome.TaskKey, "rule", outcome.Rule)

		if err := s.recordApplied(ctx, caseID, action); err != nil {
			result.Errors = append(result.Errors, opError(caseID, "append event", outcome.TaskKey, err))
		}
	}
	return result
}

func (s *Service) recordApplied(ctx context.Context, caseID uuid.UUID, action gatekeeper.Action) error {
	payload := map[string]any{"rule": action.RuleID()}

	switch a := action.(type) {
	case gatekeeper.UnlockTask:
		s.publish(ctx, events.TaskUnlocked{
			BaseEvent: events.NewBaseEvent(),
			CaseID:    caseID,
			TaskKey:   a.Key,
			DueAt:     a.DueAt,
			Rule:      a.Rule,
		})
		return s.audit(ctx, caseID, domain.EventTaskUnlocked, a.Key, nil, payload)
	case gatekeeper.CompleteTask:
		s.publish(ctx, events.TaskCompleted{
			BaseEvent: events.NewBaseEvent(),
			CaseID:    caseID,
			TaskKey:   a.Key,
			Rule:      a.Rule,
		})
		return s.audit(ctx, caseID, domain.EventTaskCompleted, a.Key, nil, payload)
	}
	return nil
}

// ListTasks returns the checklist of a case.
func (s *Service) ListTasks(ctx context.Context, caseID uuid.UUID) ([]domain.Task, error) {
	if _, err := s.repo.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, caseID)
}

// UpdateTaskStatus applies a user-driven transition and re-runs the gatekeeper.
func (s *Service) UpdateTaskStatus(ctx context.Context, caseID uuid.UUID, taskKey string, to domain.TaskStatus, actorID *uuid.UUID) (TaskUpdateResult, error) {
	var result TaskUpdateResult
	err := s.withCaseLock(ctx, caseID, func() error {
		task, err := s.findTask(ctx, caseID, taskKey)
		if err != nil {
			return err
		}

		from := task.Status
		if !domain.CanTransition(from, to) {
			return apperr.Conflict(fmt.Sprintf("cannot move task from %s to %s", from, to)).WithDetails(map[string]any{
				"from":    from,
				"to":      to,
				"allowed": domain.AllowedTransitions(from),
			})
		}

		ok, err := s.repo.TransitionTask(ctx, caseID, taskKey, from, to, nil)
		if err != nil {
			return opError(caseID, "update task status", taskKey, err)
		}
		if !ok {
			return apperr.Conflict("task was modified concurrently")
		}

		if err := s.audit(ctx, caseID, domain.EventTaskStatusChanged, taskKey, actorID, map[string]any{
			"from": string(from),
			"to":   string(to),
		}); err != nil {
			result.Errors = append(result.Errors, opError(caseID, "append event", taskKey, err))
		}

		result.Tasks, err = s.evaluateLocked(ctx, caseID)
		if err != nil {
			return err
		}
		result.Task, err = s.findTask(ctx, caseID, taskKey)
		return err
	})
	return result, err
}

// RecordDocketOutcome stores the outcome of the docket check on its task and
// re-runs the gatekeeper.
func (s *Service) RecordDocketOutcome(ctx context.Context, caseID uuid.UUID, outcome domain.DocketOutcome, actorID *uuid.UUID) (TaskUpdateResult, error) {
	if !domain.IsRecordableDocketOutcome(string(outcome)) {
		return TaskUpdateResult{}, apperr.Validation("docket outcome must be no_answer_filed or answer_filed")
	}

	var result TaskUpdateResult
	err := s.withCaseLock(ctx, caseID, func() error {
		task, err := s.findTask(ctx, caseID, domain.TaskCheckDocketForAnswer)
		if err != nil {
			return err
		}
		if task.Status == domain.StatusLocked {
			return apperr.Conflict("the docket check is not unlocked yet")
		}

		metadata := task.Metadata
		metadata.DocketOutcome = outcome
		if err := s.repo.UpdateTaskMetadata(ctx, caseID, task.Key, metadata); err != nil {
			return opError(caseID, "record docket outcome", task.Key, err)
		}

		if err := s.audit(ctx, caseID, domain.EventDocketOutcomeRecorded, task.Key, actorID, map[string]any{
			"outcome": string(outcome),
		}); err != nil {
			result.Errors = append(result.Errors, opError(caseID, "append event", task.Key, err))
		}

		result.Tasks, err = s.evaluateLocked(ctx, caseID)
		if err != nil {
			return err
		}
		result.Task, err = s.findTask(ctx, caseID, task.Key)
		return err
	})
	return result, err
}

func (s *Service) findTask(ctx context.Context, caseID uuid.UUID, key string) (domain.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, caseID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, t := range tasks {
		if t.Key == key {
			return t, nil
		}
	}
	return domain.Task{}, apperr.NotFound(fmt.Sprintf("task %s not found", key))
}
