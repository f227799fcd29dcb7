// Package app assembles configured components into runnable bots; cmd/tw and
// cmd/twd share this wiring.
package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/bot"
	"github.com/ehrlich-b/tradewarden/internal/config"
	"github.com/ehrlich-b/tradewarden/internal/llm"
	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/strategy"
)

// BuildStrategy constructs the named strategy from config. "dynamic" is the
// swarm composition alias for the configured non-AI strategy; "ai" for the
// oracle-backed one.
func BuildStrategy(cfg *config.Config, rec *record.Recorder, kind string) (strategy.Strategy, error) {
	var mon *strategy.CollapseMonitor
	if cfg.Trading.AntiCollapse.Enabled {
		mon = strategy.NewCollapseMonitor(cfg.Trading.AntiCollapse.FloorPerTurn,
			time.Duration(cfg.Trading.AntiCollapse.WindowMinutes)*time.Minute)
	}
	pairsCfg := strategy.PairsConfig{
		ProfitThreshold:  cfg.Trading.TradeQuality.ProfitThreshold,
		MaxHopRadius:     cfg.Trading.TradeQuality.MaxHopRadius,
		TravelCostPerHop: cfg.Trading.TradeQuality.TravelCostPerHop,
	}

	switch kind {
	case "dynamic":
		inner := cfg.Trading.Strategy
		if inner == "ai_strategy" {
			inner = "profitable_pairs"
		}
		return BuildStrategy(cfg, rec, inner)

	case "profitable_pairs":
		return strategy.NewProfitablePairs(pairsCfg, mon), nil

	case "opportunistic":
		return strategy.NewOpportunistic(mon), nil

	case "twerk_optimized":
		route, err := LoadRoute(cfg.Trading.RoutePath)
		if err != nil {
			return nil, err
		}
		return strategy.NewRouteRunner(route, cfg.Trading.Loop), nil

	case "ai", "ai_strategy":
		oracle, err := BuildOracle(cfg, rec)
		if err != nil {
			return nil, err
		}
		fallback, err := BuildStrategy(cfg, rec, cfg.AIStrategy.FallbackStrategy)
		if err != nil {
			return nil, fmt.Errorf("ai fallback: %w", err)
		}
		return strategy.NewAI(oracle, fallback,
			cfg.AIStrategy.FallbackThreshold, cfg.AIStrategy.FallbackDurationTurns), nil

	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}

// BuildOracle wires the configured LLM provider into a validating adapter.
func BuildOracle(cfg *config.Config, rec *record.Recorder) (*llm.Adapter, error) {
	p := cfg.LLM.ProviderSection()

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "openai":
		provider = llm.NewOpenAI(p.APIKey, p.BaseURL, p.Model)
	case "gemini":
		provider = llm.NewGemini(p.APIKey, p.Model)
	case "ollama":
		provider = llm.NewOllama(p.BaseURL, p.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	client := llm.NewClient(provider,
		time.Duration(p.TimeoutSeconds)*time.Second, p.MaxRetries, p.RequestsPerSecond)
	if p.RetryDelaySeconds > 0 {
		client.RetryDelay = time.Duration(p.RetryDelaySeconds * float64(time.Second))
	}
	if p.RetryBackoffMultiplier > 0 {
		client.BackoffMultiplier = p.RetryBackoffMultiplier
	}

	return llm.NewAdapter(client, llm.AdapterConfig{
		Mode:            llm.ContextMode(cfg.AIStrategy.ContextMode),
		SectorRadius:    cfg.AIStrategy.SectorRadius,
		IncludeHistory:  cfg.AIStrategy.IncludeHistory,
		MaxHistoryItems: cfg.AIStrategy.MaxHistoryItems,
	}, rec), nil
}

// LoadRoute reads a precomputed action script: a JSON array of actions.
func LoadRoute(path string) (*strategy.SliceRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	var actions []strategy.Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("parse route: %w", err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("route %s is empty", path)
	}
	return &strategy.SliceRoute{Actions: actions}, nil
}

// BotConfig maps file configuration onto one bot's runtime config.
func BotConfig(cfg *config.Config, id, character, ship string) bot.Config {
	return bot.Config{
		ID:              id,
		CharacterName:   character,
		ShipName:        ship,
		Password:        cfg.Character.Password,
		GameSelection:   cfg.Connection.Game,
		GamePassword:    cfg.Connection.GamePassword,
		ReadTimeout:     time.Duration(cfg.Session.ReadTimeoutMs) * time.Millisecond,
		StabilityWindow: time.Duration(cfg.Session.StabilityWindowMs) * time.Millisecond,
		PageCap:         cfg.Session.PageCap,
		MaxTurns:        cfg.Session.MaxTurnsPerSession,
		TargetCredits:   cfg.Session.TargetCredits,
	}
}

// OpenRecorder creates the per-session JSONL sink under dir. The caller owns
// Close.
func OpenRecorder(dir, id string) (*record.Recorder, error) {
	if dir == "" {
		return record.New(nil, id), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record dir: %w", err)
	}
	name := fmt.Sprintf("%s-%d.jsonl", id, time.Now().Unix())
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("record file: %w", err)
	}
	return record.New(f, id), nil
}
