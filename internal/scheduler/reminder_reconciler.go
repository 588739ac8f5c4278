package scheduler

import (
	"context"
	"errors"
	"time"

	"case_timeline_backend/internal/casetimeline/domain"
	"case_timeline_backend/internal/casetimeline/orchestrator"
	"case_timeline_backend/platform/logger"
)

const (
	defaultReconcileInterval = time.Minute
	defaultReconcileGrace    = 2 * time.Minute
	reconcileBatchSize       = 100
)

// OverdueReminderSource lists pending reminders whose send time has passed.
type OverdueReminderSource interface {
	ListOverdueReminders(ctx context.Context, before time.Time, limit int) ([]domain.Reminder, error)
}

// ReminderEnqueuer is satisfied by Client.
type ReminderEnqueuer interface {
	ScheduleReminder(ctx context.Context, reminder domain.Reminder) error
}

// ReminderReconciler re-enqueues reminders whose original enqueue failed.
// Reminders already queued are deduplicated by their task ID and counted
// apart; a task that runs out of retries marks its reminder failed, which
// takes it out of the overdue scan.
type ReminderReconciler struct {
	source   OverdueReminderSource
	enqueuer ReminderEnqueuer
	log      *logger.Logger
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

func NewReminderReconciler(source OverdueReminderSource, enqueuer ReminderEnqueuer, log *logger.Logger, interval time.Duration) *ReminderReconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &ReminderReconciler{
		source:   source,
		enqueuer: enqueuer,
		log:      log,
		interval: interval,
		grace:    defaultReconcileGrace,
		now:      time.Now,
	}
}

func (r *ReminderReconciler) Run(ctx context.Context) {
	if r == nil || r.source == nil || r.enqueuer == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.reconcile(ctx)
	}
}

// reconcileResult counts one pass. AlreadyQueued reminders still have a live
// queue task and were not enqueued again.
type reconcileResult struct {
	Queued        int
	AlreadyQueued int
	Failed        int
}

func (r *ReminderReconciler) reconcile(ctx context.Context) reconcileResult {
	var res reconcileResult
	reminders, err := r.source.ListOverdueReminders(ctx, r.now().Add(-r.grace), reconcileBatchSize)
	if err != nil {
		r.log.Warn("overdue reminder scan failed", "error", err)
		return res
	}

	for _, rem := range reminders {
		err := r.enqueuer.ScheduleReminder(ctx, rem)
		switch {
		case errors.Is(err, orchestrator.ErrReminderAlreadyQueued):
			res.AlreadyQueued++
		case err != nil:
			res.Failed++
			r.log.Warn("reminder re-enqueue failed", "reminderId", rem.ID, "error", err)
		default:
			res.Queued++
		}
	}
	if res.Queued > 0 {
		r.log.Info("overdue reminders re-enqueued", "count", res.Queued)
	}
	if res.AlreadyQueued > 0 {
		r.log.Debug("overdue reminders still queued", "count", res.AlreadyQueued)
	}
	return res
}
