package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"case_timeline_backend/internal/casetimeline"
	"case_timeline_backend/internal/casetimeline/escalation"
	"case_timeline_backend/internal/email"
	"case_timeline_backend/internal/events"
	"case_timeline_backend/internal/locking"
	"case_timeline_backend/internal/notification"
	"case_timeline_backend/internal/scheduler"
	"case_timeline_backend/platform/config"
	"case_timeline_backend/platform/db"
	"case_timeline_backend/platform/logger"
	"case_timeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	rules, err := escalation.LoadRules(cfg.GetEscalationRulesPath())
	if err != nil {
		log.Error("failed to load escalation rules", "error", err)
		panic("failed to load escalation rules: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)

	redisClient, err := locking.NewRedisClient(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to initialize redis lock client", "error", err)
		panic("failed to initialize redis lock client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		panic("failed to initialize reminder scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	caseModule, err := casetimeline.NewModule(pool, validator.New(), casetimeline.Deps{
		Locker:    locking.NewRedisLocker(redisClient, cfg.GetCaseLockTTL(), log),
		Reminders: client,
		Bus:       eventBus,
		Rules:     rules,
	}, cfg, log)
	if err != nil {
		log.Error("failed to initialize case timeline module", "error", err)
		panic("failed to initialize case timeline module: " + err.Error())
	}

	// Reminder and escalation emails are sent from here; SSE clients live on the API.
	notificationModule := notification.New(email.NewSender(cfg), caseModule.Service, log)
	notificationModule.SetAppBaseURL(cfg.GetAppBaseURL())
	notificationModule.RegisterHandlers(eventBus)

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic jobs", "error", err)
		panic("failed to initialize periodic jobs: " + err.Error())
	}
	go periodic.Run(ctx)

	reconciler := scheduler.NewReminderReconciler(
		caseModule.Repository(),
		client,
		log,
		getDurationEnv("REMINDER_RECONCILE_INTERVAL", time.Minute),
	)
	go reconciler.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, caseModule.Service, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
