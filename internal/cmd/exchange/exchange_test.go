package exchange

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("exchange", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
}

func TestParseConfigEnvThenFlags(t *testing.T) {
	t.Setenv("GIFTRING_EXCHANGE_PORT", "9000")

	fs := flag.NewFlagSet("exchange", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port = %d, want env override 9000", cfg.Port)
	}

	fs = flag.NewFlagSet("exchange", flag.ContinueOnError)
	cfg, err = ParseConfig(fs, []string{"-port", "9001"})
	if err != nil {
		t.Fatalf("parse config with flags: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("port = %d, want flag override 9001", cfg.Port)
	}
}
