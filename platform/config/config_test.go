package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/cases")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GetBatchConcurrency() != 8 {
		t.Fatalf("expected batch concurrency 8, got %d", cfg.GetBatchConcurrency())
	}
	if cfg.GetEventLookback() != 720*time.Hour {
		t.Fatalf("expected 720h lookback, got %s", cfg.GetEventLookback())
	}
	if cfg.GetDefaultLocation() == nil || cfg.GetDefaultLocation().String() != "America/Los_Angeles" {
		t.Fatalf("unexpected default location %v", cfg.GetDefaultLocation())
	}
	if cfg.IsSMTPEnabled() {
		t.Fatalf("expected SMTP to be disabled without SMTP_HOST")
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"missing database url", "DATABASE_URL", ""},
		{"missing jwt secret", "JWT_ACCESS_SECRET", ""},
		{"unknown timezone", "CASE_TIMEZONE", "Mars/Olympus_Mons"},
		{"zero concurrency", "BATCH_CONCURRENCY", "0"},
		{"bad lookback", "EVENT_LOOKBACK", "soon"},
		{"smtp without sender", "SMTP_HOST", "smtp.example.com"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("EMAIL_FROM_ADDRESS", "")
			t.Setenv(tc.key, tc.val)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
