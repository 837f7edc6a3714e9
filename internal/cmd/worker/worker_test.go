package worker

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8089 {
		t.Fatalf("port = %d, want 8089", cfg.Port)
	}
	if cfg.DBPath != "data/worker.db" {
		t.Fatalf("db path = %q, want data/worker.db", cfg.DBPath)
	}
	if cfg.PollInterval != 5*time.Second || cfg.LeaseTTL != 30*time.Second {
		t.Fatalf("intervals = %v/%v, want 5s/30s", cfg.PollInterval, cfg.LeaseTTL)
	}
	if cfg.MaxAttempts != 5 || cfg.RetryBackoff != time.Minute || cfg.RetryMaxDelay != time.Hour {
		t.Fatalf("retry = %d/%v/%v", cfg.MaxAttempts, cfg.RetryBackoff, cfg.RetryMaxDelay)
	}
}

func TestParseConfigEnvThenFlags(t *testing.T) {
	t.Setenv("GIFTRING_WORKER_PORT", "9000")
	t.Setenv("GIFTRING_WORKER_POLL_INTERVAL", "2s")

	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9001", "-batch-size", "25"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	// Flags win over env; env wins over defaults.
	if cfg.Port != 9001 {
		t.Fatalf("port = %d, want flag override 9001", cfg.Port)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %v, want env override 2s", cfg.PollInterval)
	}
	if cfg.BatchSize != 25 {
		t.Fatalf("batch size = %d, want 25", cfg.BatchSize)
	}
}
