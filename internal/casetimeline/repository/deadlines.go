package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deadlineColumns = `id, case_id, key, due_at, source, rationale, calc_version`

// ReplaceSystemDeadlines brings the system deadlines of the case in line with
// writes. A deadline whose key and due instant are unchanged keeps its row, so
// escalations already raised for it survive; rows no write reconfirms are
// deleted and their reminders and escalations cascade. Either everything
// commits or nothing does.
func (r *Repository) ReplaceSystemDeadlines(ctx context.Context, caseID uuid.UUID, writes []domain.DeadlineWrite) ([]domain.Deadline, []domain.Reminder, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin deadline transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockCaseRow(ctx, tx, caseID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+deadlineColumns+` FROM deadlines WHERE case_id = $1 AND source = 'system'`, caseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load system deadlines: %w", err)
	}
	stored, err := collectDeadlines(rows)
	if err != nil {
		return nil, nil, err
	}

	plan := domain.PlanSystemDeadlines(stored, writes)
	if len(plan.Stale) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM deadlines WHERE id = ANY($1::uuid[])`, plan.Stale); err != nil {
			return nil, nil, fmt.Errorf("failed to delete stale system deadlines: %w", err)
		}
	}

	deadlines := make([]domain.Deadline, 0, len(writes))
	var reminders []domain.Reminder
	for i, w := range writes {
		var d domain.Deadline
		var rs []domain.Reminder
		if kept, ok := plan.Kept[i]; ok {
			d, err = refreshDeadline(ctx, tx, kept, w)
			if err == nil {
				rs, err = syncReminders(ctx, tx, d.ID, w)
			}
		} else {
			d, err = insertDeadline(ctx, tx, w)
			if err == nil {
				rs, err = insertReminders(ctx, tx, d.ID, w.ReminderChannel, w.ReminderSends)
			}
		}
		if err != nil {
			return nil, nil, err
		}
		deadlines = append(deadlines, d)
		reminders = append(reminders, rs...)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit deadlines: %w", err)
	}
	return deadlines, reminders, nil
}

func refreshDeadline(ctx context.Context, q querier, d domain.Deadline, w domain.DeadlineWrite) (domain.Deadline, error) {
	if d.Rationale == w.Rationale && d.CalcVersion == w.CalcVersion {
		return d, nil
	}
	_, err := q.Exec(ctx, `UPDATE deadlines SET rationale = $2, calc_version = $3 WHERE id = $1`, d.ID, w.Rationale, w.CalcVersion)
	if err != nil {
		return domain.Deadline{}, fmt.Errorf("failed to refresh deadline %s: %w", w.Key, err)
	}
	d.Rationale = w.Rationale
	d.CalcVersion = w.CalcVersion
	return d, nil
}

// syncReminders keeps reminders that are still wanted, drops pending ones that
// are not and inserts the missing send times.
func syncReminders(ctx context.Context, q querier, deadlineID uuid.UUID, w domain.DeadlineWrite) ([]domain.Reminder, error) {
	rows, err := q.Query(ctx, `
		SELECT id, deadline_id, channel, send_at, status, COALESCE(last_error, '')
		FROM reminders WHERE deadline_id = $1
	`, deadlineID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminders: %w", err)
	}
	stored, err := collectReminders(rows)
	if err != nil {
		return nil, err
	}

	plan := domain.PlanReminders(stored, w.ReminderChannel, w.ReminderSends)
	if len(plan.Stale) > 0 {
		if _, err := q.Exec(ctx, `DELETE FROM reminders WHERE id = ANY($1::uuid[])`, plan.Stale); err != nil {
			return nil, fmt.Errorf("failed to delete stale reminders: %w", err)
		}
	}
	added, err := insertReminders(ctx, q, deadlineID, w.ReminderChannel, plan.Missing)
	if err != nil {
		return nil, err
	}
	return append(plan.Kept, added...), nil
}

// UpsertConfirmedDeadline keeps the row ID of an existing (case, key, source)
// deadline so escalations already raised for it are not repeated.
func (r *Repository) UpsertConfirmedDeadline(ctx context.Context, w domain.DeadlineWrite) (domain.Deadline, []domain.Reminder, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Deadline{}, nil, fmt.Errorf("failed to begin deadline transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockCaseRow(ctx, tx, w.CaseID); err != nil {
		return domain.Deadline{}, nil, err
	}

	var d domain.Deadline
	var source string
	err = tx.QueryRow(ctx, `
		INSERT INTO deadlines (id, case_id, key, due_at, source, rationale, calc_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (case_id, key, source) DO UPDATE SET
			due_at = EXCLUDED.due_at,
			rationale = EXCLUDED.rationale
		RETURNING `+deadlineColumns,
		uuid.New(), w.CaseID, w.Key, w.DueAt, string(w.Source), w.Rationale, w.CalcVersion,
	).Scan(&d.ID, &d.CaseID, &d.Key, &d.DueAt, &source, &d.Rationale, &d.CalcVersion)
	if err != nil {
		return domain.Deadline{}, nil, fmt.Errorf("failed to upsert confirmed deadline: %w", err)
	}
	d.Source = domain.DeadlineSource(source)

	reminders, err := syncReminders(ctx, tx, d.ID, w)
	if err != nil {
		return domain.Deadline{}, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Deadline{}, nil, fmt.Errorf("failed to commit confirmed deadline: %w", err)
	}
	return d, reminders, nil
}

func insertDeadline(ctx context.Context, q querier, w domain.DeadlineWrite) (domain.Deadline, error) {
	d := domain.Deadline{
		ID:          uuid.New(),
		CaseID:      w.CaseID,
		Key:         w.Key,
		DueAt:       w.DueAt,
		Source:      w.Source,
		Rationale:   w.Rationale,
		CalcVersion: w.CalcVersion,
	}
	_, err := q.Exec(ctx, `
		INSERT INTO deadlines (id, case_id, key, due_at, source, rationale, calc_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.CaseID, d.Key, d.DueAt, string(d.Source), d.Rationale, d.CalcVersion)
	if err != nil {
		return domain.Deadline{}, fmt.Errorf("failed to insert deadline %s: %w", w.Key, err)
	}
	return d, nil
}

func insertReminders(ctx context.Context, q querier, deadlineID uuid.UUID, channel string, sends []time.Time) ([]domain.Reminder, error) {
	out := make([]domain.Reminder, 0, len(sends))
	for _, sendAt := range sends {
		rem := domain.Reminder{
			ID:         uuid.New(),
			DeadlineID: deadlineID,
			Channel:    channel,
			SendAt:     sendAt.UTC(),
			Status:     domain.ReminderPending,
		}
		_, err := q.Exec(ctx, `
			INSERT INTO reminders (id, deadline_id, channel, send_at, status)
			VALUES ($1, $2, $3, $4, $5)
		`, rem.ID, rem.DeadlineID, rem.Channel, rem.SendAt, string(rem.Status))
		if err != nil {
			return nil, fmt.Errorf("failed to insert reminder: %w", err)
		}
		out = append(out, rem)
	}
	return out, nil
}

// ListDeadlines returns all deadlines of a case ordered by due time.
func (r *Repository) ListDeadlines(ctx context.Context, caseID uuid.UUID) ([]domain.Deadline, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deadlineColumns+` FROM deadlines WHERE case_id = $1 ORDER BY due_at, key`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadlines: %w", err)
	}
	return collectDeadlines(rows)
}

// ListDeadlinesDueBetween returns deadlines of all cases due in [from, to].
func (r *Repository) ListDeadlinesDueBetween(ctx context.Context, from, to time.Time) ([]domain.Deadline, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deadlineColumns+` FROM deadlines WHERE due_at BETWEEN $1 AND $2 ORDER BY case_id, due_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadlines in window: %w", err)
	}
	return collectDeadlines(rows)
}

func collectDeadlines(rows pgx.Rows) ([]domain.Deadline, error) {
	defer rows.Close()

	out := make([]domain.Deadline, 0)
	for rows.Next() {
		var d domain.Deadline
		var source string
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Key, &d.DueAt, &source, &d.Rationale, &d.CalcVersion); err != nil {
			return nil, fmt.Errorf("failed to scan deadline: %w", err)
		}
		d.Source = domain.DeadlineSource(source)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deadlines: %w", err)
	}
	return out, nil
}

// ListReminders returns the reminders of every deadline of a case.
func (r *Repository) ListReminders(ctx context.Context, caseID uuid.UUID) ([]domain.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.deadline_id, r.channel, r.send_at, r.status, COALESCE(r.last_error, '')
		FROM reminders r
		JOIN deadlines d ON d.id = r.deadline_id
		WHERE d.case_id = $1
		ORDER BY r.send_at
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return collectReminders(rows)
}

// GetReminderDispatch loads a reminder with its deadline and case.
func (r *Repository) GetReminderDispatch(ctx context.Context, reminderID uuid.UUID) (domain.ReminderDispatch, error) {
	var out domain.ReminderDispatch
	var status, source string
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.deadline_id, r.channel, r.send_at, r.status, COALESCE(r.last_error, ''),
			d.id, d.case_id, d.key, d.due_at, d.source, d.rationale, d.calc_version,
			c.id, c.title, c.owner_email, c.timezone, c.created_at
		FROM reminders r
		JOIN deadlines d ON d.id = r.deadline_id
		JOIN cases c ON c.id = d.case_id
		WHERE r.id = $1
	`, reminderID).Scan(
		&out.Reminder.ID, &out.Reminder.DeadlineID, &out.Reminder.Channel, &out.Reminder.SendAt, &status, &out.Reminder.LastError,
		&out.Deadline.ID, &out.Deadline.CaseID, &out.Deadline.Key, &out.Deadline.DueAt, &source, &out.Deadline.Rationale, &out.Deadline.CalcVersion,
		&out.Case.ID, &out.Case.Title, &out.Case.OwnerEmail, &out.Case.Timezone, &out.Case.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReminderDispatch{}, apperr.NotFound(reminderNotFoundMsg)
		}
		return domain.ReminderDispatch{}, fmt.Errorf("failed to get reminder: %w", err)
	}
	out.Reminder.Status = domain.ReminderStatus(status)
	out.Deadline.Source = domain.DeadlineSource(source)
	return out, nil
}

// MarkReminder records a delivery outcome.
func (r *Repository) MarkReminder(ctx context.Context, reminderID uuid.UUID, status domain.ReminderStatus, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders SET status = $2, last_error = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
	`, reminderID, string(status), lastError)
	if err != nil {
		return fmt.Errorf("failed to mark reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(reminderNotFoundMsg)
	}
	return nil
}

// ListOverdueReminders returns pending reminders whose send time is before the
// cutoff, oldest first.
func (r *Repository) ListOverdueReminders(ctx context.Context, before time.Time, limit int) ([]domain.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deadline_id, channel, send_at, status, COALESCE(last_error, '')
		FROM reminders
		WHERE status = 'pending' AND send_at < $1
		ORDER BY send_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue reminders: %w", err)
	}
	return collectReminders(rows)
}

func collectReminders(rows pgx.Rows) ([]domain.Reminder, error) {
	defer rows.Close()

	out := make([]domain.Reminder, 0)
	for rows.Next() {
		var rem domain.Reminder
		var status string
		if err := rows.Scan(&rem.ID, &rem.DeadlineID, &rem.Channel, &rem.SendAt, &status, &rem.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		rem.Status = domain.ReminderStatus(status)
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}
	return out, nil
}
