package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRANSFORM_PROVIDER", "")
	t.Setenv("TRANSFORM_DELAY", "")

	cfg := Load()
	if cfg.Transform.Provider != "delay" {
		t.Fatalf("expected delay provider by default, got %q", cfg.Transform.Provider)
	}
	if cfg.Transform.Delay != 3*time.Second {
		t.Fatalf("expected 3s default delay, got %s", cfg.Transform.Delay)
	}
	if cfg.Worker.Concurrency < 2 {
		t.Fatalf("expected worker concurrency >= 2, got %d", cfg.Worker.Concurrency)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("STYLEFLOW_TEST_DURATION", "750ms")
	if got := envDuration("STYLEFLOW_TEST_DURATION", time.Second); got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", got)
	}

	t.Setenv("STYLEFLOW_TEST_DURATION", "1200")
	if got := envDuration("STYLEFLOW_TEST_DURATION", time.Second); got != 1200*time.Millisecond {
		t.Fatalf("expected bare number as milliseconds, got %s", got)
	}

	t.Setenv("STYLEFLOW_TEST_DURATION", "soon")
	if got := envDuration("STYLEFLOW_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback for junk value, got %s", got)
	}
}

func TestStorageEnabled(t *testing.T) {
	if (StorageConfig{Bucket: "styleflow"}).Enabled() {
		t.Fatal("expected storage without endpoint to be disabled")
	}
	if !(StorageConfig{Endpoint: "localhost:9000", Bucket: "styleflow"}).Enabled() {
		t.Fatal("expected storage to be enabled")
	}
}
