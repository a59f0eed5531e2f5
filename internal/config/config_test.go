package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawblock/ring-engine/internal/heuristics"
)

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://ring:ring@db:5432/rings")

	path := filepath.Join(t.TempDir(), "engine.yaml")
	body := `
server:
  port: "8080"
  allowed_origins: ["https://dash.example"]
database:
  url: ${TEST_DB_URL}
detection:
  fan_threshold: 15
  window_span: 48h
  dedupe_smurf_members: true
alerts:
  webhooks:
    - name: soc
      url: https://hooks.example/soc
      min_severity: critical
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.MaxUploadBytes != 16<<20 {
		t.Errorf("missing keys should keep defaults, upload cap = %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Database.URL != "postgres://ring:ring@db:5432/rings" {
		t.Errorf("env expansion failed: %q", cfg.Database.URL)
	}
	if cfg.Detection.FanThreshold != 15 || cfg.Detection.WindowSpan != 48*time.Hour || !cfg.Detection.DedupeSmurfMembers {
		t.Errorf("detection overrides not applied: %+v", cfg.Detection)
	}
	if cfg.Detection.MaxCycleDepth != heuristics.DefaultMaxCycleDepth {
		t.Errorf("untouched threshold lost its default: %d", cfg.Detection.MaxCycleDepth)
	}
	if len(cfg.Alerts.Webhooks) != 1 || cfg.Alerts.Webhooks[0].MinSeverity != "critical" {
		t.Errorf("webhooks = %+v", cfg.Alerts.Webhooks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CYCLE_TIMEOUT", "5s")
	t.Setenv("SMURF_FAN_THRESHOLD", "not-a-number")
	t.Setenv("STRICT_TIMESTAMPS", "true")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example/x")

	cfg := LoadFromEnv()

	if cfg.Server.Port != "9000" {
		t.Errorf("port = %s", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Detection.CycleTimeout != 5*time.Second {
		t.Errorf("cycle timeout = %v", cfg.Detection.CycleTimeout)
	}
	if cfg.Detection.FanThreshold != heuristics.DefaultFanThreshold {
		t.Errorf("invalid int should fall back to default, got %d", cfg.Detection.FanThreshold)
	}
	if !cfg.Detection.StrictTimestamps {
		t.Errorf("strict timestamps not enabled")
	}
	if len(cfg.Alerts.Webhooks) != 1 || cfg.Alerts.Webhooks[0].MinSeverity != "high" {
		t.Errorf("webhooks = %+v", cfg.Alerts.Webhooks)
	}
}
