package worker

import (
	"flag"
	"io"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	t.Setenv("EVENTPASS_WORKER_PORT", "9099")
	t.Setenv("EVENTPASS_SMTP_HOST", "smtp.example.com")

	cfg, err := ParseConfig(fs, []string{"-consumer", "worker-e2e", "-max-attempts", "3"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9099 {
		t.Fatalf("port = %d, want 9099", cfg.Port)
	}
	if cfg.SMTPHost != "smtp.example.com" {
		t.Fatalf("smtp host = %q", cfg.SMTPHost)
	}
	if cfg.Consumer != "worker-e2e" {
		t.Fatalf("consumer = %q, want %q", cfg.Consumer, "worker-e2e")
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.PurchasesDBPath != "data/purchases.db" || cfg.DBPath != "data/worker.db" {
		t.Fatalf("db paths = %q, %q", cfg.PurchasesDBPath, cfg.DBPath)
	}
	if cfg.PollInterval != 2*time.Second || cfg.RetryMaxDelay != 5*time.Minute {
		t.Fatalf("poll/max delay = %v/%v", cfg.PollInterval, cfg.RetryMaxDelay)
	}
	if cfg.SMTPPort != 587 || cfg.Locale != "en-US" {
		t.Fatalf("smtp port/locale = %d/%q", cfg.SMTPPort, cfg.Locale)
	}
}

func TestParseConfig_RejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := ParseConfig(fs, []string{"-auth-addr", "x"}); err == nil {
		t.Fatal("expected unknown flag error")
	}
}
