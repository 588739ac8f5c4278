package scheduler

import (
	"context"
	"fmt"
	"time"

	"case_timeline_backend/internal/casetimeline/orchestrator"
	"case_timeline_backend/platform/config"
	"case_timeline_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// sweepUniqueTTL keeps a slow sweep from piling up behind itself.
const sweepUniqueTTL = 10 * time.Minute

// Periodic registers the cron-driven sweeps with asynq.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	queue := queueName(cfg)

	jobs := []struct {
		cron     string
		taskType string
		job      string
	}{
		{cfg.GetEscalationSweepCron(), TaskEscalationSweep, orchestrator.JobEscalationSweep},
		{cfg.GetGatekeeperSweepCron(), TaskGatekeeperSweep, orchestrator.JobGatekeeperSweep},
	}
	for _, j := range jobs {
		if j.cron == "" {
			log.Info("periodic job disabled", "job", j.job)
			continue
		}
		task, err := NewSweepTask(j.taskType, j.job)
		if err != nil {
			return nil, err
		}
		if _, err := s.Register(j.cron, task, asynq.Queue(queue), asynq.Unique(sweepUniqueTTL), asynq.MaxRetry(2)); err != nil {
			return nil, fmt.Errorf("register %s (%q): %w", j.job, j.cron, err)
		}
		log.Info("periodic job registered", "job", j.job, "cron", j.cron)
	}

	return &Periodic{scheduler: s, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler failed to start", "error", err)
		return
	}

	<-ctx.Done()
	p.scheduler.Shutdown()
}
