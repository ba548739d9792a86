// Package config loads evalwatch configuration from YAML with environment
// variable expansion, applies defaults, and validates before anything runs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	Models      []string          `yaml:"models"`
	Judge       JudgeConfig       `yaml:"judge"`
	Dataset     DatasetConfig     `yaml:"dataset"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Retry       RetryConfig       `yaml:"retry"`
	Store       StoreConfig       `yaml:"store"`
	Drift       DriftConfig       `yaml:"drift"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// GatewayConfig points at the OpenAI-compatible LLM gateway all model and
// judge calls go through.
type GatewayConfig struct {
	// Provider selects the client: "openai" (default, covers any
	// OpenAI-compatible gateway) or "anthropic".
	Provider string `yaml:"provider"`
	// BaseURL overrides the provider's default endpoint, e.g. a LiteLLM
	// proxy address.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// JudgeConfig configures the scoring model.
type JudgeConfig struct {
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DatasetConfig names the dataset files.
type DatasetConfig struct {
	// GoldenPath is the text-evaluation CSV.
	GoldenPath string `yaml:"golden_path"`
	// RAGPath is the RAG-evaluation CSV.
	RAGPath string `yaml:"rag_path"`
	// KnowledgeBasePath is the retrieval corpus JSON.
	KnowledgeBasePath string `yaml:"knowledge_base_path"`
	// DataDir is the base directory image paths resolve against.
	DataDir string `yaml:"data_dir"`
}

// RetrievalConfig configures the vector retriever.
type RetrievalConfig struct {
	EmbeddingModel string `yaml:"embedding_model"`
	TopK           int    `yaml:"top_k"`
	CacheDir       string `yaml:"cache_dir"`
}

// EvaluationConfig bounds individual model calls.
type EvaluationConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// ConcurrencyConfig bounds the harness fan-out.
type ConcurrencyConfig struct {
	ModelWorkers    int `yaml:"model_workers"`
	QuestionWorkers int `yaml:"question_workers"`
}

// RetryConfig configures the fixed retry schedule for transient failures.
type RetryConfig struct {
	MaxRetries int             `yaml:"max_retries"`
	Backoff    []time.Duration `yaml:"backoff"`
}

// StoreConfig names the results database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DriftConfig configures drift detection and alerting.
type DriftConfig struct {
	// Threshold is the maximum tolerated drop from the historical best.
	Threshold float64 `yaml:"threshold"`
	// Window caps how many recent runs each check inspects; 0 (the
	// default) inspects all history.
	Window int `yaml:"window"`
	// Schedule is the cron expression for the drift watcher.
	Schedule string       `yaml:"schedule"`
	Alerts   AlertsConfig `yaml:"alerts"`
}

// AlertsConfig enables notification channels; empty values disable a
// channel.
type AlertsConfig struct {
	WebhookURL        string      `yaml:"webhook_url"`
	DiscordWebhookURL string      `yaml:"discord_webhook_url"`
	SlackWebhookURL   string      `yaml:"slack_webhook_url"`
	Email             EmailConfig `yaml:"email"`
}

// EmailConfig configures the SMTP alert channel.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig configures OTLP trace export. An empty endpoint disables
// tracing.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Load reads the YAML config at path, expands ${ENV_VAR} references, applies
// defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration defaults; Load overlays the file on top.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{Provider: "openai"},
		Judge: JudgeConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 300,
			Timeout:   25 * time.Second,
		},
		Dataset: DatasetConfig{
			GoldenPath:        "data/golden_dataset.csv",
			RAGPath:           "data/rag_dataset.csv",
			KnowledgeBasePath: "data/knowledge_base.json",
			DataDir:           "data",
		},
		Retrieval: RetrievalConfig{
			EmbeddingModel: "text-embedding-3-small",
			TopK:           5,
			CacheDir:       ".cache",
		},
		Evaluation: EvaluationConfig{
			CallTimeout: 120 * time.Second,
			MaxTokens:   300,
		},
		Concurrency: ConcurrencyConfig{
			ModelWorkers:    3,
			QuestionWorkers: 5,
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			Backoff:    []time.Duration{5 * time.Second, 10 * time.Second},
		},
		Store: StoreConfig{Path: "evalwatch.db"},
		Drift: DriftConfig{
			Threshold: 0.10,
			Schedule:  "0 * * * *",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Gateway.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("gateway.provider must be \"openai\" or \"anthropic\", got %q", c.Gateway.Provider)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}
	if c.Judge.Model == "" {
		return fmt.Errorf("judge.model is required")
	}
	if c.Drift.Threshold < 0 || c.Drift.Threshold > 1 {
		return fmt.Errorf("drift.threshold must be in [0, 1], got %v", c.Drift.Threshold)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Concurrency.ModelWorkers <= 0 || c.Concurrency.QuestionWorkers <= 0 {
		return fmt.Errorf("concurrency workers must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Drift.Window < 0 {
		return fmt.Errorf("drift.window must not be negative, got %d", c.Drift.Window)
	}
	return nil
}
