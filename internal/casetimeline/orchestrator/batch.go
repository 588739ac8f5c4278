package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Batch job names.
const (
	JobEscalationSweep = "escalation_sweep"
	JobGatekeeperSweep = "gatekeeper_sweep"
)

type caseFunc func(ctx context.Context, caseID uuid.UUID) (created int, err error)

// runBatch fans out over caseIDs with bounded concurrency. A failing case is
// recorded in the summary and never stops the others.
func (s *Service) runBatch(ctx context.Context, job string, caseIDs []uuid.UUID, fn caseFunc) BatchSummary {
	summary := BatchSummary{Job: job, Total: len(caseIDs)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, caseID := range caseIDs {
		caseID := caseID
		g.Go(func() error {
			created, err := fn(gctx, caseID)

			mu.Lock()
			defer mu.Unlock()
			summary.Created += created
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, CaseError{CaseID: caseID, Err: err})
				s.log.Warn("batch case failed", "job", job, "caseId", caseID, "error", err)
				return nil
			}
			summary.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Errors, func(i, j int) bool {
		return summary.Errors[i].CaseID.String() < summary.Errors[j].CaseID.String()
	})
	s.log.BatchFinished(job, summary.Total, summary.Succeeded, summary.Failed, summary.Created)
	return summary
}

// RunGatekeeperSweep re-evaluates every case with unfinished tasks so
// time-driven rules fire without a user mutation.
func (s *Service) RunGatekeeperSweep(ctx context.Context) (BatchSummary, error) {
	caseIDs, err := s.repo.ListActiveCaseIDs(ctx)
	if err != nil {
		return BatchSummary{Job: JobGatekeeperSweep}, err
	}

	return s.runBatch(ctx, JobGatekeeperSweep, caseIDs, func(ctx context.Context, caseID uuid.UUID) (int, error) {
		result, err := s.EvaluateTasks(ctx, caseID)
		if err != nil {
			return 0, err
		}
		errs := make([]error, 0, len(result.Errors))
		for _, e := range result.Errors {
			errs = append(errs, e)
		}
		return len(result.Applied), errors.Join(errs...)
	}), nil
}
