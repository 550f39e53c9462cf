package gemini

import (
	"context"
	"fmt"
	"os"

	genai "google.golang.org/genai"

	"github.com/wilhg/cloudask/pkg/adapters/embedding"
)

const defaultEmbeddingModel = "gemini-embedding-001"

type embedClient struct {
	client *genai.Client
	model  string
}

func (e *embedClient) Name() string { return "gemini" }

func (e *embedClient) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := embedding.String(opts, "model", e.model)
	contents := make([]*genai.Content, 0, len(inputs))
	for _, s := range inputs {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: s}}})
	}
	var config *genai.EmbedContentConfig
	if tt := embedding.String(opts, "task_type", ""); tt != "" {
		// RETRIEVAL_DOCUMENT for catalog entries, RETRIEVAL_QUERY for questions
		config = &genai.EmbedContentConfig{TaskType: tt}
	}
	res, err := e.client.Models.EmbedContent(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("gemini: got %d embeddings for %d inputs", len(res.Embeddings), len(inputs))
	}
	out := make([]embedding.Vector, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		vec := make([]float32, len(emb.Values))
		for i := range emb.Values {
			vec[i] = float32(emb.Values[i])
		}
		out = append(out, embedding.Vector(vec))
	}
	return out, nil
}

// Factory creates a Gemini embedder using GOOGLE_API_KEY by default.
func Factory(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) { // nolint: revive
	apiKey := embedding.String(cfg, "api_key", os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &embedClient{client: client, model: embedding.String(cfg, "model", defaultEmbeddingModel)}, nil
}

func init() {
	_ = embedding.Register("gemini", Factory)
}
