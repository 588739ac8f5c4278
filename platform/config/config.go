// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq-backed scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetEscalationSweepCron() string
	GetGatekeeperSweepCron() string
}

// EngineConfig provides settings for the case progression engine and its orchestrator.
type EngineConfig interface {
	GetDefaultLocation() *time.Location
	GetEscalationRulesPath() string
	GetBatchConcurrency() int
	GetEventLookback() time.Duration
	GetReminderChannel() string
}

// LockConfig provides settings for per-case locking.
type LockConfig interface {
	GetRedisURL() string
	GetCaseLockTTL() time.Duration
}

// SMTPConfig provides settings for reminder and escalation email delivery.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsSMTPEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	JWTAccessSecret     string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	EscalationSweepCron string
	GatekeeperSweepCron string
	CaseTimezone        string
	DefaultLocation     *time.Location
	EscalationRulesPath string
	BatchConcurrency    int
	EventLookback       time.Duration
	CaseLockTTL         time.Duration
	ReminderChannel     string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	AppBaseURL          string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string            { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool      { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string      { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int       { return c.AsynqConcurrency }
func (c *Config) GetEscalationSweepCron() string { return c.EscalationSweepCron }
func (c *Config) GetGatekeeperSweepCron() string { return c.GatekeeperSweepCron }

// EngineConfig implementation
func (c *Config) GetDefaultLocation() *time.Location { return c.DefaultLocation }
func (c *Config) GetEscalationRulesPath() string     { return c.EscalationRulesPath }
func (c *Config) GetBatchConcurrency() int           { return c.BatchConcurrency }
func (c *Config) GetEventLookback() time.Duration    { return c.EventLookback }
func (c *Config) GetReminderChannel() string         { return c.ReminderChannel }

// LockConfig implementation
func (c *Config) GetCaseLockTTL() time.Duration { return c.CaseLockTTL }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsSMTPEnabled() bool         { return c.SMTPHost != "" }

// GetAppBaseURL is the frontend origin used for links in outgoing email.
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := containsWildcard(corsOrigins)

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTAccessSecret:     getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EscalationSweepCron: getEnv("ESCALATION_SWEEP_CRON", "*/15 * * * *"),
		GatekeeperSweepCron: getEnv("GATEKEEPER_SWEEP_CRON", "5 * * * *"),
		CaseTimezone:        getEnv("CASE_TIMEZONE", "America/Los_Angeles"),
		EscalationRulesPath: getEnv("ESCALATION_RULES_PATH", ""),
		BatchConcurrency:    mustInt(getEnv("BATCH_CONCURRENCY", "8")),
		EventLookback:       mustDuration(getEnv("EVENT_LOOKBACK", "720h")),
		CaseLockTTL:         mustDuration(getEnv("CASE_LOCK_TTL", "30s")),
		ReminderChannel:     getEnv("REMINDER_CHANNEL", "email"),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Case Timeline"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		AppBaseURL:          getEnv("APP_BASE_URL", "http://localhost:4200"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ORIGINS contains *")
	}

	loc, err := time.LoadLocation(cfg.CaseTimezone)
	if err != nil {
		return nil, fmt.Errorf("CASE_TIMEZONE %q is not a valid IANA zone: %w", cfg.CaseTimezone, err)
	}
	cfg.DefaultLocation = loc

	if cfg.BatchConcurrency < 1 {
		return nil, fmt.Errorf("BATCH_CONCURRENCY must be positive")
	}
	if cfg.EventLookback <= 0 {
		return nil, fmt.Errorf("EVENT_LOOKBACK must be a positive duration")
	}
	if cfg.CaseLockTTL <= 0 {
		return nil, fmt.Errorf("CASE_LOCK_TTL must be a positive duration")
	}
	if cfg.IsSMTPEnabled() && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when SMTP_HOST is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
