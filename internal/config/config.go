// Package config assembles the explicit configuration object passed to every
// engine component at construction. Components never read ambient environment
// variables themselves.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLLMProvider = "openai"
	DefaultLLMModel    = "gpt-4o-mini"
	DefaultLLMBaseURL  = "https://api.openai.com/v1"

	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbeddingBaseURL = "https://api.openai.com/v1"

	DefaultMaxAgentSteps      = 5
	DefaultObservationLimit   = 2000
	DefaultChunkSize          = 512
	DefaultChunkOverlap       = 64
	DefaultRetrievalTopK      = 4
	DefaultEmbedCacheSize     = 10000
	DefaultHistoryWindow      = 12
	DefaultLLMTimeout         = 120 * time.Second
	DefaultToolTimeout        = 30 * time.Second
	DefaultStoreFailThreshold = 3
	DefaultStoreRetryTimeout  = 15 * time.Second
)

// LLMConfig configures the chat completion capability.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig configures the embedding capability.
type EmbeddingConfig struct {
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	CacheSize int    `mapstructure:"cache_size"`
}

// AgentConfig configures the reasoning loop.
type AgentConfig struct {
	MaxSteps         int           `mapstructure:"max_steps"`
	ObservationLimit int           `mapstructure:"observation_limit"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
}

// IndexConfig configures the per-session document index.
type IndexConfig struct {
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	TopK         int    `mapstructure:"top_k"`
	PersistPath  string `mapstructure:"persist_path"`
}

// StoreConfig configures the durable session/message store.
type StoreConfig struct {
	PostgresDSN      string        `mapstructure:"postgres_dsn"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RetryTimeout     time.Duration `mapstructure:"retry_timeout"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the root configuration object.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Index     IndexConfig     `mapstructure:"index"`
	Store     StoreConfig     `mapstructure:"store"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`

	// HistoryWindow bounds how many recent messages are handed to the LLM
	// for grounding and agent transcripts.
	HistoryWindow int `mapstructure:"history_window"`
}

// Load reads configuration from an optional file plus QUILL_* environment
// variables. An empty path means file loading is skipped unless a config file
// is found in the working directory or home directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(".quill")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The embedder shares the LLM credential unless configured separately.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", DefaultLLMProvider)
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.timeout", DefaultLLMTimeout)

	v.SetDefault("embedding.model", DefaultEmbeddingModel)
	v.SetDefault("embedding.base_url", DefaultEmbeddingBaseURL)
	v.SetDefault("embedding.cache_size", DefaultEmbedCacheSize)

	v.SetDefault("agent.max_steps", DefaultMaxAgentSteps)
	v.SetDefault("agent.observation_limit", DefaultObservationLimit)
	v.SetDefault("agent.tool_timeout", DefaultToolTimeout)

	v.SetDefault("index.chunk_size", DefaultChunkSize)
	v.SetDefault("index.chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("index.top_k", DefaultRetrievalTopK)
	v.SetDefault("index.persist_path", "")

	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.failure_threshold", DefaultStoreFailThreshold)
	v.SetDefault("store.retry_timeout", DefaultStoreRetryTimeout)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.prometheus_port", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("history_window", DefaultHistoryWindow)
}
