// Package config loads the bot/swarm configuration: YAML file, then
// TW_SECTION__SUBSECTION__KEY environment overrides, then validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the application prefix for environment overrides.
const EnvPrefix = "TW"

// Config represents the full application configuration.
type Config struct {
	Connection     ConnectionConfig     `yaml:"connection"`
	Character      CharacterConfig      `yaml:"character"`
	Trading        TradingConfig        `yaml:"trading"`
	Session        SessionConfig        `yaml:"session"`
	MultiCharacter MultiCharacterConfig `yaml:"multi_character"`
	LLM            LLMConfig            `yaml:"llm"`
	AIStrategy     AIStrategyConfig     `yaml:"ai_strategy"`
	Rules          RulesConfig          `yaml:"rules"`
	Storage        StorageConfig        `yaml:"storage"`
	Swarm          SwarmConfig          `yaml:"swarm"`
	Logging        LoggingConfig        `yaml:"logging"`
	Record         RecordConfig         `yaml:"record"`
}

type ConnectionConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Game         string `yaml:"game"`          // menu key for the game to join
	GamePassword string `yaml:"game_password"` // private-game password, if any
}

type CharacterConfig struct {
	Password            string `yaml:"password"`
	NameComplexity      string `yaml:"name_complexity"`
	GenerateShipNames   bool   `yaml:"generate_ship_names"`
	ShipNamesWithNumber bool   `yaml:"ship_names_with_numbers"`
	NameSeed            int64  `yaml:"name_seed"`
}

type TradingConfig struct {
	Strategy     string             `yaml:"strategy"`
	RoutePath    string             `yaml:"route_path"` // action script for twerk_optimized
	Loop         bool               `yaml:"loop"`
	AntiCollapse AntiCollapseConfig `yaml:"anti_collapse"`
	TradeQuality TradeQualityConfig `yaml:"trade_quality"`
}

type AntiCollapseConfig struct {
	Enabled       bool    `yaml:"enabled"`
	FloorPerTurn  float64 `yaml:"floor_per_turn"`
	WindowMinutes int     `yaml:"window_minutes"`
}

type TradeQualityConfig struct {
	ProfitThreshold  int `yaml:"profit_threshold"`
	MaxHopRadius     int `yaml:"max_hop_radius"`
	TravelCostPerHop int `yaml:"travel_cost_per_hop"`
}

type SessionConfig struct {
	TargetCredits      int `yaml:"target_credits"`
	MaxTurnsPerSession int `yaml:"max_turns_per_session"`
	StabilityWindowMs  int `yaml:"stability_window_ms"`
	ReadTimeoutMs      int `yaml:"read_timeout_ms"`
	PageCap            int `yaml:"page_cap"`
}

type MultiCharacterConfig struct {
	Enabled          bool   `yaml:"enabled"`
	MaxCharacters    int    `yaml:"max_characters"`
	KnowledgeSharing string `yaml:"knowledge_sharing"`
}

type LLMConfig struct {
	Provider string         `yaml:"provider"`
	Ollama   ProviderConfig `yaml:"ollama"`
	OpenAI   ProviderConfig `yaml:"openai"`
	Gemini   ProviderConfig `yaml:"gemini"`
}

type ProviderConfig struct {
	BaseURL                string  `yaml:"base_url"`
	APIKey                 string  `yaml:"api_key"`
	Model                  string  `yaml:"model"`
	TimeoutSeconds         int     `yaml:"timeout_seconds"`
	MaxRetries             int     `yaml:"max_retries"`
	RetryDelaySeconds      float64 `yaml:"retry_delay_seconds"`
	RetryBackoffMultiplier float64 `yaml:"retry_backoff_multiplier"`
	RequestsPerSecond      float64 `yaml:"requests_per_second"`
}

type AIStrategyConfig struct {
	Enabled               bool   `yaml:"enabled"`
	FallbackStrategy      string `yaml:"fallback_strategy"`
	FallbackThreshold     int    `yaml:"fallback_threshold"`
	FallbackDurationTurns int    `yaml:"fallback_duration_turns"`
	ContextMode           string `yaml:"context_mode"`
	SectorRadius          int    `yaml:"sector_radius"`
	IncludeHistory        bool   `yaml:"include_history"`
	MaxHistoryItems       int    `yaml:"max_history_items"`
	TimeoutMs             int    `yaml:"timeout_ms"`
}

type RulesConfig struct {
	Path      string `yaml:"path"`
	HotReload bool   `yaml:"hot_reload"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type SwarmConfig struct {
	Listen                string `yaml:"listen"`
	LeaseSeconds          int    `yaml:"lease_seconds"`
	LeaseCeilingSeconds   int    `yaml:"lease_ceiling_seconds"`
	StatusIntervalSeconds int    `yaml:"status_interval_seconds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type RecordConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns a configuration with working defaults for everything that
// has a sensible one. Host, password, and rules path must come from the
// file.
func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{Port: 23, Game: "A"},
		Character: CharacterConfig{
			NameComplexity: "medium",
		},
		Trading: TradingConfig{
			Strategy: "profitable_pairs",
			AntiCollapse: AntiCollapseConfig{
				Enabled:       true,
				FloorPerTurn:  1.0,
				WindowMinutes: 15,
			},
			TradeQuality: TradeQualityConfig{
				ProfitThreshold:  100,
				MaxHopRadius:     8,
				TravelCostPerHop: 5,
			},
		},
		Session: SessionConfig{
			MaxTurnsPerSession: 200,
			StabilityWindowMs:  120,
			ReadTimeoutMs:      10000,
			PageCap:            20,
		},
		MultiCharacter: MultiCharacterConfig{
			MaxCharacters:    1,
			KnowledgeSharing: "independent",
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Ollama: ProviderConfig{
				BaseURL:                "http://127.0.0.1:11434",
				Model:                  "llama3",
				TimeoutSeconds:         30,
				MaxRetries:             2,
				RetryDelaySeconds:      0.5,
				RetryBackoffMultiplier: 2,
			},
		},
		AIStrategy: AIStrategyConfig{
			FallbackStrategy:      "opportunistic",
			FallbackThreshold:     3,
			FallbackDurationTurns: 10,
			ContextMode:           "summary",
			SectorRadius:          2,
			IncludeHistory:        true,
			MaxHistoryItems:       8,
			TimeoutMs:             30000,
		},
		Storage: StorageConfig{Path: "tradewarden.db"},
		Swarm: SwarmConfig{
			Listen:                "127.0.0.1:8920",
			LeaseSeconds:          60,
			LeaseCeilingSeconds:   600,
			StatusIntervalSeconds: 15,
		},
		Logging: LoggingConfig{Level: "info"},
		Record:  RecordConfig{Dir: "records"},
	}
}

// Load reads configuration from a file, applies environment overrides, and
// validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Connection.Host == "" {
		return fmt.Errorf("connection.host is required")
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port must be in 1..65535")
	}
	switch c.Character.NameComplexity {
	case "simple", "medium", "complex", "numbered":
	default:
		return fmt.Errorf("character.name_complexity must be simple, medium, complex, or numbered")
	}
	switch c.Trading.Strategy {
	case "profitable_pairs", "opportunistic", "twerk_optimized", "ai_strategy":
	default:
		return fmt.Errorf("trading.strategy must be profitable_pairs, opportunistic, twerk_optimized, or ai_strategy")
	}
	if c.Trading.Strategy == "twerk_optimized" && c.Trading.RoutePath == "" {
		return fmt.Errorf("trading.route_path is required for twerk_optimized")
	}
	switch c.MultiCharacter.KnowledgeSharing {
	case "shared", "independent", "inherit_on_death":
	default:
		return fmt.Errorf("multi_character.knowledge_sharing must be shared, independent, or inherit_on_death")
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider must be ollama, openai, or gemini")
	}
	if c.Trading.Strategy == "ai_strategy" && !c.AIStrategy.Enabled {
		return fmt.Errorf("trading.strategy is ai_strategy but ai_strategy.enabled is false")
	}
	switch c.AIStrategy.ContextMode {
	case "summary", "full":
	default:
		return fmt.Errorf("ai_strategy.context_mode must be summary or full")
	}
	if c.Rules.Path == "" {
		return fmt.Errorf("rules.path is required")
	}
	return nil
}

// Provider returns the active provider subsection.
func (c *LLMConfig) ProviderSection() ProviderConfig {
	switch c.Provider {
	case "openai":
		return c.OpenAI
	case "gemini":
		return c.Gemini
	default:
		return c.Ollama
	}
}
