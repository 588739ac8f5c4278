// Package casetimeline provides the case timeline domain module: deadline
// calculation, task gating and escalation for litigation cases.
package casetimeline

import (
	"fmt"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/casetimeline/handler"
	"case_timeline_backend/internal/casetimeline/orchestrator"
	"case_timeline_backend/internal/casetimeline/repository"
	"case_timeline_backend/internal/events"
	apphttp "case_timeline_backend/internal/http"
	"case_timeline_backend/internal/notification"
	"case_timeline_backend/internal/notification/sse"
	"case_timeline_backend/platform/config"
	"case_timeline_backend/platform/logger"
	"case_timeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the case timeline domain module
type Module struct {
	handler *handler.Handler
	stream  *sse.Service
	repo    *repository.Repository
	Service *orchestrator.Service
}

// Deps groups the collaborators shared with other processes.
type Deps struct {
	Locker    orchestrator.CaseLocker
	Reminders orchestrator.ReminderScheduler
	Bus       events.Bus
	Rules     []domain.EscalationRule
}

// NewModule creates the module with all dependencies wired. The validator
// gains the enum tags used by the request DTOs.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, deps Deps, cfg config.EngineConfig, log *logger.Logger) (*Module, error) {
	if err := registerValidations(val); err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	svc := orchestrator.New(repo, deps.Locker, deps.Reminders, deps.Bus, cfg, deps.Rules, log)

	return &Module{
		handler: handler.New(svc, val),
		repo:    repo,
		Service: svc,
	}, nil
}

func registerValidations(val *validator.Validator) error {
	sets := map[string]func(string) bool{
		"task_status":    domain.IsValidTaskStatus,
		"docket_outcome": domain.IsRecordableDocketOutcome,
		"deadline_source": func(s string) bool {
			return domain.DeadlineSource(s).Valid()
		},
	}
	for tag, allowed := range sets {
		if err := val.RegisterStringSet(tag, allowed); err != nil {
			return fmt.Errorf("register %s validation: %w", tag, err)
		}
	}
	return nil
}

// SetStream exposes per-case live updates under /cases/:id/stream.
func (m *Module) SetStream(s *sse.Service) { m.stream = s }

// Repository is shared with the reminder reconciler.
func (m *Module) Repository() *repository.Repository { return m.repo }

// Name returns the module name for logging
func (m *Module) Name() string {
	return "casetimeline"
}

// RegisterRoutes registers the module's routes under /api/v1/cases
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	cases := ctx.Protected.Group("/cases")
	m.handler.RegisterRoutes(cases)
	if m.stream != nil {
		cases.GET("/:id/stream", m.stream.Handler())
	}
}

// Compile-time checks
var (
	_ apphttp.Module                = (*Module)(nil)
	_ orchestrator.Repository       = (*repository.Repository)(nil)
	_ handler.CaseService           = (*orchestrator.Service)(nil)
	_ notification.DeliveryRecorder = (*orchestrator.Service)(nil)
)
