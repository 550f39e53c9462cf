// Package config loads cloudask settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment driven configuration of the assistant.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"cloudask"`

	AWSRegion      string        `env:"AWS_REGION"`
	AWSEndpointURL string        `env:"AWS_ENDPOINT_URL"`
	AWSMaxAttempts int           `env:"AWS_MAX_ATTEMPTS" envDefault:"0"`
	Services       []string      `env:"CLOUDASK_SERVICES" envSeparator:","`
	ReadOnly       bool          `env:"CLOUDASK_READ_ONLY" envDefault:"false"`
	ToolTimeout    time.Duration `env:"TOOL_TIMEOUT" envDefault:"60s"`

	LLMProvider string        `env:"LLM_PROVIDER" envDefault:"ollama"`
	LLMModel    string        `env:"LLM_MODEL"`
	LLMBaseURL  string        `env:"LLM_BASE_URL"`
	LLMAPIKey   string        `env:"LLM_API_KEY"`
	LLMTimeout  time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`

	EmbeddingProvider  string `env:"EMBEDDING_PROVIDER" envDefault:"ollama"`
	EmbeddingModel     string `env:"EMBEDDING_MODEL"`
	EmbeddingBaseURL   string `env:"EMBEDDING_BASE_URL"`
	EmbeddingBatchSize int    `env:"EMBEDDING_BATCH_SIZE" envDefault:"1000"`

	VectorStoreProvider string `env:"VECTORSTORE_PROVIDER" envDefault:"memory"`
	ChromaDBURL         string `env:"CHROMADB_URL"`

	TopK                 int    `env:"RETRIEVAL_TOP_K" envDefault:"5"`
	PromptMaxTokens      int    `env:"PROMPT_MAX_TOKENS" envDefault:"0"`
	PromptTokenizerModel string `env:"PROMPT_TOKENIZER_MODEL"`
	SummaryMaxBytes      int    `env:"SUMMARY_MAX_BYTES" envDefault:"16384"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"console"`
	OTelStdout bool   `env:"OTEL_STDOUT" envDefault:"false"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.TopK)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", c.EmbeddingBatchSize)
	}
	if c.AWSMaxAttempts < 0 {
		return fmt.Errorf("AWS_MAX_ATTEMPTS must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	for i, s := range c.Services {
		c.Services[i] = strings.TrimSpace(strings.ToLower(s))
	}
	return nil
}

// LLMSettings returns the provider factory settings for the generation model.
func (c *Config) LLMSettings() map[string]any {
	return map[string]any{
		"model":    c.LLMModel,
		"base_url": c.LLMBaseURL,
		"api_key":  c.LLMAPIKey,
		"timeout":  c.LLMTimeout,
	}
}

// EmbeddingSettings returns the provider factory settings for the embedder.
// The base URL and API key fall back to the generation backend's.
func (c *Config) EmbeddingSettings() map[string]any {
	base := c.EmbeddingBaseURL
	if base == "" && c.EmbeddingProvider == c.LLMProvider {
		base = c.LLMBaseURL
	}
	return map[string]any{
		"model":    c.EmbeddingModel,
		"base_url": base,
		"api_key":  c.LLMAPIKey,
		"timeout":  c.LLMTimeout,
	}
}

// VectorStoreSettings returns the provider factory settings for the store.
func (c *Config) VectorStoreSettings() map[string]any {
	return map[string]any{"base_url": c.ChromaDBURL}
}
