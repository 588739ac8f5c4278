package scheduler

import (
	"context"
	"fmt"

	"case_timeline_backend/internal/casetimeline/orchestrator"
	"case_timeline_backend/platform/config"
	"case_timeline_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// CaseEngine is the part of the orchestrator the worker drives.
type CaseEngine interface {
	DispatchReminder(ctx context.Context, reminderID uuid.UUID) error
	AbandonReminder(ctx context.Context, reminderID uuid.UUID, cause error) error
	RunEscalationSweep(ctx context.Context) (orchestrator.BatchSummary, error)
	RunGatekeeperSweep(ctx context.Context) (orchestrator.BatchSummary, error)
}

type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	engine      CaseEngine
	log         *logger.Logger
	lastAttempt func(ctx context.Context) bool
}

func NewWorker(cfg config.SchedulerConfig, engine CaseEngine, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server:      server,
		engine:      engine,
		log:         log,
		lastAttempt: isLastAttempt,
	}
	w.mux = w.routes()

	return w, nil
}

func (w *Worker) routes() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskReminderDue, w.handleReminderDue)
	mux.HandleFunc(TaskEscalationSweep, w.handleEscalationSweep)
	mux.HandleFunc(TaskGatekeeperSweep, w.handleGatekeeperSweep)
	return mux
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleReminderDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReminderDuePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	reminderID, err := uuid.Parse(payload.ReminderID)
	if err != nil {
		return fmt.Errorf("invalid reminder id %q: %w", payload.ReminderID, asynq.SkipRetry)
	}

	err = w.engine.DispatchReminder(ctx, reminderID)
	if err != nil && w.lastAttempt != nil && w.lastAttempt(ctx) {
		if markErr := w.engine.AbandonReminder(ctx, reminderID, err); markErr != nil {
			w.log.Error("failed to mark abandoned reminder", "reminderId", reminderID, "error", markErr)
		}
	}
	return err
}

// isLastAttempt reports whether asynq will archive the task if this run fails.
func isLastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}

// Sweeps only fail when the case list cannot be loaded. Per-case errors are
// in the summary and already logged.
func (w *Worker) handleEscalationSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := w.engine.RunEscalationSweep(ctx)
	return err
}

func (w *Worker) handleGatekeeperSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := w.engine.RunGatekeeperSweep(ctx)
	return err
}
