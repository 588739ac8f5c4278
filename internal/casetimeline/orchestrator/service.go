// Package orchestrator applies the pure case engine to stored state. It owns
// per-case locking, persistence, audit events, reminder queueing and the batch
// sweeps; the deadlines, gatekeeper and escalation packages stay free of I/O.
package orchestrator

import (
	"context"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/casetimeline/gatekeeper"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/platform/apperr"
	"case_timeline_backend/platform/config"
	"case_timeline_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultBatchConcurrency = 8

// Service coordinates the engine with its collaborators.
type Service struct {
	repo      Repository
	locker    CaseLocker
	reminders ReminderScheduler
	bus       events.Bus
	log       *logger.Logger

	escalationRules []domain.EscalationRule
	gateRules       []gatekeeper.Rule
	defaultLoc      *time.Location
	concurrency     int
	lookback        time.Duration
	channel         string
	now             func() time.Time
}

// New creates an orchestrator. reminders and bus may be nil, in which case
// reminders are only persisted and no events are published.
func New(repo Repository, locker CaseLocker, reminders ReminderScheduler, bus events.Bus, cfg config.EngineConfig, rules []domain.EscalationRule, log *logger.Logger) *Service {
	concurrency := cfg.GetBatchConcurrency()
	if concurrency < 1 {
		concurrency = defaultBatchConcurrency
	}
	loc := cfg.GetDefaultLocation()
	if loc == nil {
		loc = time.UTC
	}
	channel := cfg.GetReminderChannel()
	if channel == "" {
		channel = "email"
	}

	return &Service{
		repo:            repo,
		locker:          locker,
		reminders:       reminders,
		bus:             bus,
		log:             log,
		escalationRules: rules,
		gateRules:       gatekeeper.DefaultRules(),
		defaultLoc:      loc,
		concurrency:     concurrency,
		lookback:        cfg.GetEventLookback(),
		channel:         channel,
		now:             time.Now,
	}
}

// SetClock replaces the wall clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// EscalationRules returns the loaded escalation rule set.
func (s *Service) EscalationRules() []domain.EscalationRule {
	out := make([]domain.EscalationRule, len(s.escalationRules))
	copy(out, s.escalationRules)
	return out
}

// withCaseLock runs fn while holding the case lock.
func (s *Service) withCaseLock(ctx context.Context, caseID uuid.UUID, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, caseID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "case is busy, retry shortly", err)
	}
	defer unlock()
	return fn()
}

// audit appends a case event. Failures are logged and returned so callers can
// decide whether they matter.
func (s *Service) newEvent(caseID uuid.UUID, kind, subject string, actorID *uuid.UUID, payload map[string]any) domain.CaseEvent {
	return domain.CaseEvent{
		ID:        uuid.New(),
		CaseID:    caseID,
		Kind:      kind,
		Subject:   subject,
		ActorID:   actorID,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
}

func (s *Service) audit(ctx context.Context, caseID uuid.UUID, kind, subject string, actorID *uuid.UUID, payload map[string]any) error {
	err := s.repo.AppendEvent(ctx, s.newEvent(caseID, kind, subject, actorID, payload))
	if err != nil {
		s.log.Warn("case event append failed", "caseId", caseID, "kind", kind, "error", err)
	}
	return err
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event)
}
