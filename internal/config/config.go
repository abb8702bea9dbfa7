package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	DSN           string           `json:"dsn"`
	Port          int              `json:"port"`
	MigrationsDir string           `json:"migrations_dir"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	RateLimitMs   int              `json:"rate_limit_ms"`
	LogConfig     logger.LogConfig `json:"log_config"`
	AI            AIConfig         `json:"ai"`
	Retrieval     RetrievalConfig  `json:"retrieval"`
	Memory        MemoryConfig     `json:"memory"`
	WebSearch     WebSearchConfig  `json:"web_search"`
	EmbedCache    EmbedCacheConfig `json:"embed_cache"`
	Jobs          JobsConfig       `json:"jobs"`
}

type AIConfig struct {
	Provider      string             `json:"provider"`
	Model         string             `json:"model"`
	SummaryModel  string             `json:"summary_model"`
	EmbedModel    string             `json:"embed_model"`
	Timeout       int                `json:"timeout"`
	MaxInputChars int                `json:"max_input_chars"`
	Data          interface{}        `json:"data"`
	Fallbacks     []AIFallbackConfig `json:"fallbacks"`
}

// AIFallbackConfig is a secondary provider tried when the primary fails. A
// fallback contributes a generator when model is set and an embedder when
// embed_model is set.
type AIFallbackConfig struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	EmbedModel string      `json:"embed_model"`
	Data       interface{} `json:"data"`
}

type RetrievalConfig struct {
	Alpha               float64 `json:"alpha"`
	TopK                int     `json:"top_k"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	HistoryWindow       int     `json:"history_window"`
}

type MemoryConfig struct {
	TopK            int     `json:"top_k"`
	SummaryWindow   int     `json:"summary_window"`
	RetentionDays   int     `json:"retention_days"`
	ImportanceFloor float64 `json:"importance_floor"`
}

type WebSearchConfig struct {
	Enable     bool   `json:"enable"`
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url"`
	Engine     string `json:"engine"`
	MaxResults int    `json:"max_results"`
	TimeoutSec int    `json:"timeout_sec"`
}

type EmbedCacheConfig struct {
	LRUSize    int  `json:"lru_size"`
	TTLSeconds int  `json:"ttl_seconds"`
	UseDB      bool `json:"use_db"`
	MaxAgeDays int  `json:"max_age_days"`
}

type JobsConfig struct {
	MemoryPruneSpec  string `json:"memory_prune_spec"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.SummaryModel == "" {
		cfg.AI.SummaryModel = cfg.AI.Model
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30
	}
	if cfg.AI.MaxInputChars <= 0 {
		cfg.AI.MaxInputChars = 100000
	}
	if cfg.Retrieval.Alpha <= 0 || cfg.Retrieval.Alpha > 1 {
		cfg.Retrieval.Alpha = 0.7
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.ConfidenceThreshold <= 0 {
		cfg.Retrieval.ConfidenceThreshold = 0.7
	}
	if cfg.Retrieval.HistoryWindow <= 0 {
		cfg.Retrieval.HistoryWindow = 6
	}
	if cfg.Memory.TopK <= 0 {
		cfg.Memory.TopK = 5
	}
	if cfg.Memory.SummaryWindow <= 0 {
		cfg.Memory.SummaryWindow = 8
	}
	if cfg.Memory.RetentionDays <= 0 {
		cfg.Memory.RetentionDays = 30
	}
	if cfg.Memory.ImportanceFloor <= 0 {
		cfg.Memory.ImportanceFloor = 0.3
	}
	if cfg.WebSearch.Enable && cfg.WebSearch.APIKey == "" {
		return nil, fmt.Errorf("web_search.api_key is required when web search is enabled")
	}
	if cfg.EmbedCache.LRUSize <= 0 {
		cfg.EmbedCache.LRUSize = 4096
	}
	if cfg.EmbedCache.TTLSeconds <= 0 {
		cfg.EmbedCache.TTLSeconds = 3600
	}
	if cfg.EmbedCache.MaxAgeDays <= 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.Jobs.MemoryPruneSpec == "" {
		cfg.Jobs.MemoryPruneSpec = "0 4 * * *"
	}
	if cfg.Jobs.CacheCleanupSpec == "" {
		cfg.Jobs.CacheCleanupSpec = "30 4 * * *"
	}
	return &cfg, nil
}
