package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
)

// ListTasks returns the checklist of a case in plan order.
func (r *Repository) ListTasks(ctx context.Context, caseID uuid.UUID) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, task_key, status, due_at, metadata
		FROM tasks WHERE case_id = $1
		ORDER BY position, task_key
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Task, 0)
	for rows.Next() {
		var t domain.Task
		var status string
		var metadata []byte
		if err := rows.Scan(&t.ID, &t.CaseID, &t.Key, &status, &t.DueAt, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Status = domain.TaskStatus(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("task %s has invalid metadata: %w", t.Key, err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return out, nil
}

// TransitionTask performs an optimistic status update. A nil dueAt leaves the
// stored due date unchanged.
func (r *Repository) TransitionTask(ctx context.Context, caseID uuid.UUID, taskKey string, expected, next domain.TaskStatus, dueAt *time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $4, due_at = COALESCE($5, due_at), updated_at = now()
		WHERE case_id = $1 AND task_key = $2 AND status = $3
	`, caseID, taskKey, string(expected), string(next), dueAt)
	if err != nil {
		return false, fmt.Errorf("failed to transition task %s: %w", taskKey, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateTaskMetadata replaces the metadata document of a task.
func (r *Repository) UpdateTaskMetadata(ctx context.Context, caseID uuid.UUID, taskKey string, metadata domain.TaskMetadata) error {
	doc, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode task metadata: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET metadata = $3, updated_at = now()
		WHERE case_id = $1 AND task_key = $2
	`, caseID, taskKey, doc)
	if err != nil {
		return fmt.Errorf("failed to update task metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(taskNotFoundMsg)
	}
	return nil
}
