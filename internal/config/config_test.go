package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SENTINEL_DATA_DIR", "SENTINEL_T1_ALPHA", "SENTINEL_PROBE_JITTER_MAX"} {
		os.Unsetenv(k)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/sentinel" {
		t.Fatalf("DataDir = %q, want default", cfg.DataDir)
	}
	if cfg.T1Alpha != 0.05 {
		t.Fatalf("T1Alpha = %v, want 0.05", cfg.T1Alpha)
	}
	if cfg.ProbeJitterMax != 5*time.Second {
		t.Fatalf("ProbeJitterMax = %v, want 5s", cfg.ProbeJitterMax)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("SENTINEL_T2_ALPHA", "0.33")
	defer os.Unsetenv("SENTINEL_T2_ALPHA")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.T2Alpha != 0.33 {
		t.Fatalf("T2Alpha = %v, want 0.33", cfg.T2Alpha)
	}
}

func TestLoadInvalidFloatFallsBackToDefault(t *testing.T) {
	os.Setenv("SENTINEL_T3_ALPHA", "not-a-number")
	defer os.Unsetenv("SENTINEL_T3_ALPHA")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.T3Alpha != 0.15 {
		t.Fatalf("T3Alpha = %v, want default 0.15 on invalid input", cfg.T3Alpha)
	}
}
