package gemini

import (
	"context"
	"fmt"
	"os"

	genai "google.golang.org/genai"

	"github.com/wilhg/cloudask/pkg/adapters/llm"
)

const defaultModel = "gemini-2.5-flash-lite"

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string { return "gemini" }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := llm.String(opts, llm.OptModel, c.model)
	var config genai.GenerateContentConfig
	var contents []*genai.Content
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case "system":
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if llm.String(opts, llm.OptFormat, "") == "json" {
		config.ResponseMIMEType = "application/json"
	}
	res, err := c.client.Models.GenerateContent(ctx, model, contents, &config)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	out := llm.GenerateResult{Text: res.Text(), Model: model}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

// Factory creates a Gemini LLM client using GOOGLE_API_KEY by default.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	apiKey := llm.String(cfg, "api_key", os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	// Prefer Gemini API backend
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &clientWrapper{client: client, model: llm.String(cfg, "model", defaultModel)}, nil
}

func init() {
	_ = llm.Register("gemini", Factory)
}
