package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const escalationColumns = `id, case_id, deadline_id, escalation_level, message, triggered_at, acknowledged, acknowledged_at`

func scanEscalation(row pgx.Row) (domain.Escalation, error) {
	var e domain.Escalation
	var level int16
	err := row.Scan(&e.ID, &e.CaseID, &e.DeadlineID, &level, &e.Message, &e.TriggeredAt, &e.Acknowledged, &e.AcknowledgedAt)
	e.Level = int(level)
	return e, err
}

// ListEscalations returns the escalations of a case, newest first.
func (r *Repository) ListEscalations(ctx context.Context, caseID uuid.UUID) ([]domain.Escalation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE case_id = $1 ORDER BY triggered_at DESC, escalation_level DESC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Escalation, 0)
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalations: %w", err)
	}
	return out, nil
}

// CreateEscalation inserts an escalation unless its (deadline, level) pair
// already exists.
func (r *Repository) CreateEscalation(ctx context.Context, e domain.Escalation) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO escalations (id, case_id, deadline_id, escalation_level, message, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (deadline_id, escalation_level) DO NOTHING
	`, e.ID, e.CaseID, e.DeadlineID, int16(e.Level), e.Message, e.TriggeredAt)
	if err != nil {
		return false, fmt.Errorf("failed to create escalation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AcknowledgeEscalation marks an escalation acknowledged. Repeating it keeps
// the first acknowledgement time.
func (r *Repository) AcknowledgeEscalation(ctx context.Context, caseID, escalationID uuid.UUID, at time.Time) (domain.Escalation, error) {
	e, err := scanEscalation(r.pool.QueryRow(ctx, `
		UPDATE escalations
		SET acknowledged = true, acknowledged_at = COALESCE(acknowledged_at, $3)
		WHERE id = $1 AND case_id = $2
		RETURNING `+escalationColumns,
		escalationID, caseID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Escalation{}, apperr.NotFound(escalationNotFoundMsg)
		}
		return domain.Escalation{}, fmt.Errorf("failed to acknowledge escalation: %w", err)
	}
	return e, nil
}

// AppendEvent writes an audit event.
func (r *Repository) AppendEvent(ctx context.Context, e domain.CaseEvent) error {
	return insertEvent(ctx, r.pool, e)
}

func insertEvent(ctx context.Context, q querier, e domain.CaseEvent) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO case_events (id, case_id, kind, subject, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.CaseID, e.Kind, e.Subject, e.ActorID, doc, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append case event: %w", err)
	}
	return nil
}

// ListEventsSince returns events of a case created at or after since.
func (r *Repository) ListEventsSince(ctx context.Context, caseID uuid.UUID, since time.Time) ([]domain.CaseEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, kind, subject, actor_id, payload, created_at
		FROM case_events
		WHERE case_id = $1 AND created_at >= $2
		ORDER BY created_at
	`, caseID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list case events: %w", err)
	}
	return collectEvents(rows)
}

// ListEventsOfKinds returns every event of the given kinds, however old.
func (r *Repository) ListEventsOfKinds(ctx context.Context, caseID uuid.UUID, kinds []string) ([]domain.CaseEvent, error) {
	if len(kinds) == 0 {
		return []domain.CaseEvent{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, kind, subject, actor_id, payload, created_at
		FROM case_events
		WHERE case_id = $1 AND kind = ANY($2)
		ORDER BY created_at
	`, caseID, kinds)
	if err != nil {
		return nil, fmt.Errorf("failed to list case events by kind: %w", err)
	}
	return collectEvents(rows)
}

// ListRecentEvents returns the newest events of a case.
func (r *Repository) ListRecentEvents(ctx context.Context, caseID uuid.UUID, limit int) ([]domain.CaseEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, kind, subject, actor_id, payload, created_at
		FROM case_events
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent case events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.CaseEvent, error) {
	defer rows.Close()

	out := make([]domain.CaseEvent, 0)
	for rows.Next() {
		var e domain.CaseEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Kind, &e.Subject, &e.ActorID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode case event payload: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate case events: %w", err)
	}
	return out, nil
}
