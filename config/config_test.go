package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig should not fail without a config file: %v", err)
	}

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("Expected default http address :8080, got %s", cfg.Server.HTTPAddress)
	}
	if cfg.Session.StartingCash != 1000 {
		t.Errorf("Expected starting cash 1000, got %v", cfg.Session.StartingCash)
	}
	if cfg.Session.OpeningStory != DefaultOpeningStory {
		t.Errorf("Expected default opening story, got %q", cfg.Session.OpeningStory)
	}
	if cfg.Market.Interval != time.Second {
		t.Errorf("Expected market interval 1s, got %v", cfg.Market.Interval)
	}
	if cfg.Market.Mean != 100 || cfg.Market.Reversion != 0.05 || cfg.Market.Momentum != 0.1 || cfg.Market.Volatility != 1 {
		t.Errorf("Unexpected market defaults: %+v", cfg.Market)
	}
	if cfg.Narrative.Timeout != 0 {
		t.Errorf("Expected no narrative timeout by default, got %v", cfg.Narrative.Timeout)
	}
	if cfg.Journal.Driver != "none" {
		t.Errorf("Expected journal driver none, got %s", cfg.Journal.Driver)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  http_address: ":9000"
market:
  interval: 250ms
  history_size: 10
session:
  explicit_rejections: true
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STORYSERVER_NARRATIVE_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.HTTPAddress != ":9000" {
		t.Errorf("Expected http address from file, got %s", cfg.Server.HTTPAddress)
	}
	if cfg.Market.Interval != 250*time.Millisecond {
		t.Errorf("Expected interval 250ms, got %v", cfg.Market.Interval)
	}
	if cfg.Market.HistorySize != 10 {
		t.Errorf("Expected history size 10, got %d", cfg.Market.HistorySize)
	}
	if !cfg.Session.ExplicitRejections {
		t.Error("Expected explicit rejections to be enabled from file")
	}
	if cfg.Narrative.Model != "gpt-4o-mini" {
		t.Errorf("Expected model from env, got %s", cfg.Narrative.Model)
	}
	if cfg.Narrative.APIKey != "sk-test" {
		t.Errorf("Expected api key from OPENAI_API_KEY, got %q", cfg.Narrative.APIKey)
	}
}
