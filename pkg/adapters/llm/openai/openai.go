package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/cloudask/pkg/adapters/llm"
)

const (
	defaultModel = "gpt-5-nano"
)

type clientWrapper struct {
	client oa.Client
	model  string
}

func (c *clientWrapper) Name() string { return "openai" }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := llm.String(opts, llm.OptModel, c.model)

	// Map our messages to SDK union type
	mm := make([]oa.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			mm = append(mm, oa.SystemMessage(m.Content))
		case "assistant":
			mm = append(mm, oa.AssistantMessage(m.Content))
		default:
			mm = append(mm, oa.UserMessage(m.Content))
		}
	}

	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: mm,
	}
	if llm.String(opts, llm.OptFormat, "") == "json" {
		params.ResponseFormat = oa.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &shared.ResponseFormatJSONObjectParam{}}
	}
	if t, ok := opts[llm.OptTemperature].(float64); ok {
		params.Temperature = oa.Float(t)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.GenerateResult{}, fmt.Errorf("openai: no choices in response")
	}
	usage := resp.Usage
	return llm.GenerateResult{
		Text:         resp.Choices[0].Message.Content,
		PromptTokens: int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
		Model:        model,
	}, nil
}

// Factory builds an OpenAI-compatible chat provider; cfg keys: api_key,
// model, base_url, timeout. A base_url such as http://localhost:11434/v1
// targets Ollama's compatible endpoint, which ignores the key.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	_ = ctx
	baseURL := llm.String(cfg, "base_url", "")
	apiKey := llm.String(cfg, "api_key", os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" && baseURL != "" {
		apiKey = "ollama"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{
			Timeout:   llm.Duration(cfg, "timeout", 120*time.Second),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &clientWrapper{client: oa.NewClient(opts...), model: llm.String(cfg, "model", defaultModel)}, nil
}

func init() {
	_ = llm.Register("openai", Factory)
}
