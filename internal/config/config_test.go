package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLMProvider != "ollama" || cfg.EmbeddingProvider != "ollama" || cfg.VectorStoreProvider != "memory" {
		t.Fatalf("providers=%s/%s/%s", cfg.LLMProvider, cfg.EmbeddingProvider, cfg.VectorStoreProvider)
	}
	if cfg.TopK != 5 || cfg.LLMTimeout != 120*time.Second || cfg.LogLevel != "warn" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.ToolTimeout != 60*time.Second {
		t.Fatalf("tool timeout=%s", cfg.ToolTimeout)
	}
	if cfg.ReadOnly || len(cfg.Services) != 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLOUDASK_SERVICES", "S3, ec2")
	t.Setenv("CLOUDASK_READ_ONLY", "true")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("TOOL_TIMEOUT", "5s")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Services) != 2 || cfg.Services[0] != "s3" || cfg.Services[1] != "ec2" {
		t.Fatalf("services=%q", cfg.Services)
	}
	if !cfg.ReadOnly || cfg.TopK != 8 || cfg.ToolTimeout != 5*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if got := cfg.EmbeddingSettings()["base_url"]; got != "http://localhost:11434/v1" {
		t.Fatalf("embedding base_url=%v", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for key, val := range map[string]string{
		"RETRIEVAL_TOP_K":      "0",
		"EMBEDDING_BATCH_SIZE": "-1",
		"LOG_FORMAT":           "xml",
		"LLM_TIMEOUT":          "soon",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s accepted", key, val)
			}
		})
	}
}
