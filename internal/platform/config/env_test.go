package config

import "testing"

type sampleConfig struct {
	DBPath string `env:"GIFTRING_TEST_DB_PATH" envDefault:"data/test.db"`
	Port   int    `env:"GIFTRING_TEST_PORT" envDefault:"8080"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg sampleConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "data/test.db" {
		t.Fatalf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.Port != 8080 {
		t.Fatalf("Port = %d, want 8080", cfg.Port)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("GIFTRING_TEST_PORT", "9091")

	var cfg sampleConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 9091 {
		t.Fatalf("Port = %d, want 9091", cfg.Port)
	}
}

func TestParseEnvRejectsBadValue(t *testing.T) {
	t.Setenv("GIFTRING_TEST_PORT", "not-a-number")

	var cfg sampleConfig
	if err := ParseEnv(&cfg); err == nil {
		t.Fatal("expected parse error for non-numeric port")
	}
}
