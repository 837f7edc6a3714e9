package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

func TestParseConfigReadsEnv(t *testing.T) {
	type testConfig struct {
		Port int `env:"GIFTRING_TEST_ENTRYPOINT_PORT" envDefault:"8080"`
	}

	t.Setenv("GIFTRING_TEST_ENTRYPOINT_PORT", "9090")
	var cfg testConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Port)
	}
}

func TestParseArgsOverridesDefaults(t *testing.T) {
	t.Parallel()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	port := fs.Int("port", 8080, "port")

	if err := ParseArgs(fs, []string{"-port", "7070"}); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if *port != 7070 {
		t.Fatalf("port = %d, want 7070", *port)
	}

	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("nil flag set should error")
	}
}

func TestRunWithTelemetryRequiresServiceAndRun(t *testing.T) {
	t.Parallel()
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("empty service name should error")
	}
	if err := RunWithTelemetry(context.Background(), "exchange", nil); err == nil {
		t.Fatal("nil run function should error")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	want := errors.New("run failed")
	err := RunWithTelemetry(context.Background(), "exchange", func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
