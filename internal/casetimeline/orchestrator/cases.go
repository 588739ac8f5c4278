package orchestrator

import (
	"context"
	"strings"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/platform/apperr"

	"github.com/google/uuid"
)

// NewCase holds the user-supplied fields of a case.
type NewCase struct {
	Title      string
	OwnerEmail string
	Timezone   string
}

// CreateCase stores a case and seeds the default task plan. The case_created
// event is written in the same transaction, so a case never lacks it.
func (s *Service) CreateCase(ctx context.Context, in NewCase, actorID *uuid.UUID) (domain.Case, error) {
	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = s.defaultLoc.String()
	} else if _, err := time.LoadLocation(tz); err != nil {
		return domain.Case{}, apperr.Validation("unknown timezone").WithDetails(map[string]string{"timezone": tz})
	}

	c := domain.Case{
		ID:         uuid.New(),
		Title:      strings.TrimSpace(in.Title),
		OwnerEmail: strings.TrimSpace(in.OwnerEmail),
		Timezone:   tz,
		CreatedAt:  s.now().UTC(),
	}
	created, err := s.repo.CreateCase(ctx, c, domain.DefaultTaskPlan(),
		s.newEvent(c.ID, domain.EventCaseCreated, "", actorID, map[string]any{"timezone": tz}))
	if err != nil {
		return domain.Case{}, err
	}

	s.log.CaseAction(created.ID.String(), "created")
	return created, nil
}

// GetCase returns a case by ID.
func (s *Service) GetCase(ctx context.Context, caseID uuid.UUID) (domain.Case, error) {
	return s.repo.GetCase(ctx, caseID)
}

// GetServiceFacts returns the stored service facts of a case.
func (s *Service) GetServiceFacts(ctx context.Context, caseID uuid.UUID) (domain.ServiceFacts, error) {
	if _, err := s.repo.GetCase(ctx, caseID); err != nil {
		return domain.ServiceFacts{}, err
	}
	return s.repo.GetServiceFacts(ctx, caseID)
}

// ConfirmServiceFacts stores the facts and recomputes the case's system deadlines.
func (s *Service) ConfirmServiceFacts(ctx context.Context, caseID uuid.UUID, facts domain.ServiceFacts, actorID *uuid.UUID) (RecomputeResult, error) {
	if facts.ServedAt != nil && facts.ReturnFiledAt != nil && facts.ReturnFiledAt.Time().Before(facts.ServedAt.Time()) {
		return RecomputeResult{}, apperr.Validation("return filed date cannot precede the served date")
	}

	var result RecomputeResult
	err := s.withCaseLock(ctx, caseID, func() error {
		if _, err := s.repo.GetCase(ctx, caseID); err != nil {
			return err
		}
		if err := s.repo.UpsertServiceFacts(ctx, caseID, facts, actorID); err != nil {
			return opError(caseID, "store service facts", "", err)
		}

		auditErr := s.audit(ctx, caseID, domain.EventServiceFactsConfirmed, "", actorID, factsPayload(facts))
		s.publish(ctx, events.ServiceFactsConfirmed{
			BaseEvent: events.NewBaseEvent(),
			CaseID:    caseID,
			ActorID:   actorID,
		})

		var err error
		result, err = s.recomputeLocked(ctx, caseID)
		if auditErr != nil {
			result.Errors = append(result.Errors, opError(caseID, "append event", domain.EventServiceFactsConfirmed, auditErr))
		}
		return err
	})
	return result, err
}

func factsPayload(facts domain.ServiceFacts) map[string]any {
	payload := map[string]any{}
	if facts.ServedAt != nil {
		payload["served_at"] = facts.ServedAt.String()
	}
	if facts.ReturnFiledAt != nil {
		payload["return_filed_at"] = facts.ReturnFiledAt.String()
	}
	return payload
}
