package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("TOKEN_PEPPER", "pepper")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.BatchSize != 100 {
			t.Fatalf("expected batch size 100, got %d", cfg.BatchSize)
		}
		if cfg.MailTransport != TransportLog {
			t.Fatalf("expected log transport, got %s", cfg.MailTransport)
		}
		if cfg.PollInterval() != time.Minute {
			t.Fatalf("expected 1m poll interval, got %v", cfg.PollInterval())
		}
	})

	t.Run("clamps batch size", func(t *testing.T) {
		t.Setenv("TOKEN_PEPPER", "pepper")
		t.Setenv("BATCH_SIZE", "5000")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.BatchSize != MaxBatchSize {
			t.Fatalf("expected batch size %d, got %d", MaxBatchSize, cfg.BatchSize)
		}
	})

	t.Run("clamps intervals", func(t *testing.T) {
		t.Setenv("TOKEN_PEPPER", "pepper")
		t.Setenv("POLL_INTERVAL_SEC", "0")
		t.Setenv("MAINTENANCE_INTERVAL_MIN", "-3")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.PollInterval() != time.Second {
			t.Fatalf("expected 1s poll interval, got %v", cfg.PollInterval())
		}
		if cfg.MaintenanceInterval() != time.Minute {
			t.Fatalf("expected 1m maintenance interval, got %v", cfg.MaintenanceInterval())
		}
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		t.Setenv("TOKEN_PEPPER", "pepper")
		t.Setenv("MAIL_TRANSPORT", "carrier-pigeon")

		if _, err := Load(); err == nil {
			t.Fatalf("expected error for unknown transport")
		}
	})

	t.Run("smtp needs an address", func(t *testing.T) {
		t.Setenv("TOKEN_PEPPER", "pepper")
		t.Setenv("MAIL_TRANSPORT", "smtp")
		t.Setenv("SMTP_ADDR", "")

		if _, err := Load(); err == nil {
			t.Fatalf("expected error without SMTP_ADDR")
		}

		t.Setenv("SMTP_ADDR", "smtp.example.com:587")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.SMTPAddr != "smtp.example.com:587" {
			t.Fatalf("unexpected SMTP address %q", cfg.SMTPAddr)
		}
	})

	t.Run("requires token pepper", func(t *testing.T) {
		t.Setenv("TOKEN_PEPPER", "")
		os.Unsetenv("TOKEN_PEPPER")

		if _, err := Load(); err == nil {
			t.Fatalf("expected error when TOKEN_PEPPER is empty")
		}
	})
}
