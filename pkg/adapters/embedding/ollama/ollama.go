// Package ollama embeds text with a local Ollama server (POST /api/embed).
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/cloudask/pkg/adapters/embedding"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is Ollama's packaging of all-MiniLM-L6-v2 (384 dimensions).
	DefaultModel   = "all-minilm"
	defaultTimeout = 120 * time.Second
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embedder calls Ollama's embed endpoint.
type Embedder struct {
	client *resty.Client
	model  string
}

// New returns an Embedder for the server at baseURL.
func New(baseURL, model string, timeout time.Duration) *Embedder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Name() string { return "ollama" }

func (e *Embedder) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := embedding.String(opts, "model", e.model)
	var res embedResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(embedRequest{Model: model, Input: inputs}).
		SetResult(&res).
		Post("/api/embed")
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode(), clip(resp.String()))
	}
	if len(res.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(res.Embeddings), len(inputs))
	}
	out := make([]embedding.Vector, len(res.Embeddings))
	for i, v := range res.Embeddings {
		out[i] = embedding.Vector(v)
	}
	return out, nil
}

func clip(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// Factory builds an Ollama embedder; cfg keys: base_url, model, timeout.
func Factory(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) {
	return New(
		embedding.String(cfg, "base_url", DefaultBaseURL),
		embedding.String(cfg, "model", DefaultModel),
		embedding.Duration(cfg, "timeout", defaultTimeout),
	), nil
}

func init() {
	_ = embedding.Register("ollama", Factory)
}
