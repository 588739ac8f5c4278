// Package repository is the PostgreSQL implementation of the case timeline
// persistence port.
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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	caseNotFoundMsg       = "case not found"
	reminderNotFoundMsg   = "reminder not found"
	escalationNotFoundMsg = "escalation not found"
	taskNotFoundMsg       = "task not found"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides database operations for cases, deadlines, tasks and escalations.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new case timeline repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateCase inserts the case and its task plan in one transaction.
func (r *Repository) CreateCase(ctx context.Context, c domain.Case, plan []domain.TaskSeed, created domain.CaseEvent) (domain.Case, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Case{}, fmt.Errorf("failed to begin case transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO cases (id, title, owner_email, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING created_at
	`, c.ID, c.Title, c.OwnerEmail, c.Timezone, c.CreatedAt).Scan(&c.CreatedAt)
	if err != nil {
		return domain.Case{}, fmt.Errorf("failed to create case: %w", err)
	}

	for i, seed := range plan {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tasks (id, case_id, task_key, position, status)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), c.ID, seed.Key, i, string(seed.Status)); err != nil {
			return domain.Case{}, fmt.Errorf("failed to seed task %s: %w", seed.Key, err)
		}
	}
	if err := insertEvent(ctx, tx, created); err != nil {
		return domain.Case{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Case{}, fmt.Errorf("failed to commit case: %w", err)
	}
	return c, nil
}

// GetCase retrieves a case by ID.
func (r *Repository) GetCase(ctx context.Context, caseID uuid.UUID) (domain.Case, error) {
	var c domain.Case
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, owner_email, timezone, created_at
		FROM cases WHERE id = $1
	`, caseID).Scan(&c.ID, &c.Title, &c.OwnerEmail, &c.Timezone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Case{}, apperr.NotFound(caseNotFoundMsg)
		}
		return domain.Case{}, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// ListActiveCaseIDs returns cases that still have unfinished tasks.
func (r *Repository) ListActiveCaseIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT case_id FROM tasks
		WHERE status NOT IN ('completed', 'skipped')
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active cases: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan active cases: %w", err)
	}
	return ids, nil
}

// GetServiceFacts returns the stored facts, or empty facts when none were confirmed.
func (r *Repository) GetServiceFacts(ctx context.Context, caseID uuid.UUID) (domain.ServiceFacts, error) {
	var servedAt, returnFiledAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT served_at, return_filed_at FROM service_facts WHERE case_id = $1
	`, caseID).Scan(&servedAt, &returnFiledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ServiceFacts{}, nil
		}
		return domain.ServiceFacts{}, fmt.Errorf("failed to get service facts: %w", err)
	}
	return domain.ServiceFacts{
		ServedAt:      localDatePtr(servedAt),
		ReturnFiledAt: localDatePtr(returnFiledAt),
	}, nil
}

// UpsertServiceFacts stores the facts of a case, replacing earlier ones.
func (r *Repository) UpsertServiceFacts(ctx context.Context, caseID uuid.UUID, facts domain.ServiceFacts, actorID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_facts (case_id, served_at, return_filed_at, confirmed_by, confirmed_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (case_id) DO UPDATE SET
			served_at = EXCLUDED.served_at,
			return_filed_at = EXCLUDED.return_filed_at,
			confirmed_by = EXCLUDED.confirmed_by,
			confirmed_at = now()
	`, caseID, dateParam(facts.ServedAt), dateParam(facts.ReturnFiledAt), actorID)
	if err != nil {
		return fmt.Errorf("failed to upsert service facts: %w", err)
	}
	return nil
}

// lockCaseRow guards a transaction against a concurrent writer on another
// instance.
func lockCaseRow(ctx context.Context, q querier, caseID uuid.UUID) error {
	var id uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM cases WHERE id = $1 FOR UPDATE`, caseID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(caseNotFoundMsg)
		}
		return fmt.Errorf("failed to lock case: %w", err)
	}
	return nil
}

// DATE columns carry a calendar date, never an instant.
func dateParam(d *domain.LocalDate) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func localDatePtr(t *time.Time) *domain.LocalDate {
	if t == nil {
		return nil
	}
	d := domain.LocalDateOf(*t)
	return &d
}
