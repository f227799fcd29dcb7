package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
connection:
  host: bbs.example.net
  port: 2002
character:
  password: hunter2
rules:
  path: rules/twgs.json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Host != "bbs.example.net" || cfg.Connection.Port != 2002 {
		t.Errorf("connection = %+v", cfg.Connection)
	}
	if cfg.Trading.Strategy != "profitable_pairs" {
		t.Errorf("default strategy = %q", cfg.Trading.Strategy)
	}
	if cfg.Session.StabilityWindowMs != 120 {
		t.Errorf("default stability = %d", cfg.Session.StabilityWindowMs)
	}
	if cfg.Swarm.LeaseSeconds != 60 {
		t.Errorf("default lease = %d", cfg.Swarm.LeaseSeconds)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TW_CONNECTION__HOST", "other.example.net")
	t.Setenv("TW_CONNECTION__PORT", "2302")
	t.Setenv("TW_LLM__OLLAMA__MODEL", "mistral")
	t.Setenv("TW_TRADING__ANTI_COLLAPSE__ENABLED", "false")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Host != "other.example.net" || cfg.Connection.Port != 2302 {
		t.Errorf("connection = %+v", cfg.Connection)
	}
	if cfg.LLM.Ollama.Model != "mistral" {
		t.Errorf("model = %q", cfg.LLM.Ollama.Model)
	}
	if cfg.Trading.AntiCollapse.Enabled {
		t.Error("anti_collapse.enabled not overridden")
	}
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
trading:
  strategy: yolo
`))
	if err == nil {
		t.Fatal("bad strategy accepted")
	}
}

func TestValidateRejectsMissingHost(t *testing.T) {
	_, err := Load(writeConfig(t, `
rules:
  path: rules.json
`))
	if err == nil {
		t.Fatal("missing host accepted")
	}
}

func TestValidateAIStrategyRequiresEnabled(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
trading:
  strategy: ai_strategy
`))
	if err == nil {
		t.Fatal("ai_strategy without enabled flag accepted")
	}
}

func TestProviderSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`
llm:
  provider: gemini
  gemini:
    model: gemini-pro
    api_key: k
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.LLM.ProviderSection().Model; got != "gemini-pro" {
		t.Errorf("provider model = %q", got)
	}
}
