package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/cloudask/pkg/adapters/embedding"
)

const defaultEmbeddingModel = "text-embedding-3-small"

type embedClient struct {
	client oa.Client
	model  string
}

func (e *embedClient) Name() string { return "openai" }

func (e *embedClient) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
		Model: oa.EmbeddingModel(embedding.String(opts, "model", e.model)),
		Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(inputs))
	}
	out := make([]embedding.Vector, len(resp.Data))
	for _, d := range resp.Data {
		vec := make(embedding.Vector, len(d.Embedding))
		for i := range d.Embedding {
			vec[i] = float32(d.Embedding[i])
		}
		if int(d.Index) < len(out) {
			out[d.Index] = vec
		}
	}
	return out, nil
}

// Factory builds an OpenAI-compatible embedder; cfg keys: api_key, model,
// base_url, timeout. With a base_url such as http://localhost:11434/v1 it
// talks to Ollama, which ignores the key.
func Factory(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) { // nolint: revive
	_ = ctx
	baseURL := embedding.String(cfg, "base_url", "")
	apiKey := embedding.String(cfg, "api_key", os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" && baseURL != "" {
		apiKey = "ollama"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{
			Timeout:   embedding.Duration(cfg, "timeout", 120*time.Second),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &embedClient{client: oa.NewClient(opts...), model: embedding.String(cfg, "model", defaultEmbeddingModel)}, nil
}

func init() {
	_ = embedding.Register("openai", Factory)
}
