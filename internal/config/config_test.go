package config

import (
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, expected 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "learnlynk" {
		t.Errorf("database name = %s, expected learnlynk", cfg.Database.Name)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %s/%s, expected info/json", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Automation.ActionTimeout != 30*time.Second {
		t.Errorf("action timeout = %v, expected 30s", cfg.Automation.ActionTimeout)
	}
	if !cfg.Automation.SweepEnabled {
		t.Error("sweep should be enabled by default")
	}
	if cfg.Automation.SweepInterval != time.Hour {
		t.Errorf("sweep interval = %v, expected 1h", cfg.Automation.SweepInterval)
	}
	if cfg.Notifier.Enabled {
		t.Error("notifier should be disabled by default")
	}
	if cfg.Monitoring.Tracing.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.Monitoring.Tracing.SampleRatio != 0.1 {
		t.Errorf("sample ratio = %v, expected 0.1", cfg.Monitoring.Tracing.SampleRatio)
	}
}

func TestInitLogger(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "stdout"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}

	// Bad level falls back to info instead of failing startup.
	cfg.Log.Level = "chatty"
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with bad level failed: %v", err)
	}
}
