package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"case_timeline_backend/internal/casetimeline"
	"case_timeline_backend/internal/casetimeline/escalation"
	"case_timeline_backend/internal/casetimeline/orchestrator"
	"case_timeline_backend/internal/email"
	"case_timeline_backend/internal/events"
	apphttp "case_timeline_backend/internal/http"
	"case_timeline_backend/internal/http/router"
	"case_timeline_backend/internal/locking"
	"case_timeline_backend/internal/notification"
	"case_timeline_backend/internal/notification/sse"
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

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	rules, err := escalation.LoadRules(cfg.GetEscalationRulesPath())
	if err != nil {
		log.Error("failed to load escalation rules", "error", err)
		panic("failed to load escalation rules: " + err.Error())
	}
	log.Info("escalation rules loaded", "count", len(rules), "path", cfg.GetEscalationRulesPath())

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	locker, closeLocker := initCaseLocker(cfg, log)
	if closeLocker != nil {
		defer closeLocker()
	}

	reminderScheduler, closeScheduler := initReminderScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	stream := sse.New(log)

	caseModule, err := casetimeline.NewModule(pool, val, casetimeline.Deps{
		Locker:    locker,
		Reminders: reminderScheduler,
		Bus:       eventBus,
		Rules:     rules,
	}, cfg, log)
	if err != nil {
		log.Error("failed to initialize case timeline module", "error", err)
		panic("failed to initialize case timeline module: " + err.Error())
	}
	caseModule.SetStream(stream)

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.New(email.NewSender(cfg), caseModule.Service, log)
	notificationModule.SetStream(stream)
	notificationModule.SetAppBaseURL(cfg.GetAppBaseURL())
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			caseModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initCaseLocker shares case locks through Redis when it is configured.
// Without Redis the lock only covers this process.
func initCaseLocker(cfg config.LockConfig, log *logger.Logger) (orchestrator.CaseLocker, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; case locks are process-local")
		return locking.NewKeyedMutex(), nil
	}

	client, err := locking.NewRedisClient(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to initialize redis lock client; falling back to process-local locks", "error", err)
		return locking.NewKeyedMutex(), nil
	}

	return locking.NewRedisLocker(client, cfg.GetCaseLockTTL(), log), func() {
		_ = client.Close()
	}
}

func initReminderScheduler(cfg config.SchedulerConfig, log *logger.Logger) (orchestrator.ReminderScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; deadline reminders disabled")
		return nil, nil
	}

	reminderClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		return nil, nil
	}

	return reminderClient, func() {
		_ = reminderClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
