// Package ollama generates text with a local Ollama server (POST /api/generate).
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/cloudask/pkg/adapters/llm"
	"github.com/wilhg/cloudask/pkg/errmodel"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "mistral"
	defaultTimeout = 120 * time.Second
)

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string  `json:"model"`
	Response        *string `json:"response"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Client is a non-streaming Ollama completion client.
type Client struct {
	client  *resty.Client
	baseURL string
	model   string
}

// New returns a Client for the server at baseURL.
func New(baseURL, model string, timeout time.Duration) *Client {
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
	return &Client{client: client, baseURL: baseURL, model: model}
}

func (c *Client) Name() string { return "ollama" }

// Generate sends the user messages as one prompt; system messages go to the
// system field.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	var prompt, system []string
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		prompt = append(prompt, m.Content)
	}
	req := generateRequest{
		Model:  llm.String(opts, llm.OptModel, c.model),
		Prompt: strings.Join(prompt, "\n\n"),
		System: strings.Join(system, "\n\n"),
		Format: llm.String(opts, llm.OptFormat, ""),
	}
	if t, ok := opts[llm.OptTemperature].(float64); ok {
		req.Options = map[string]any{"temperature": t}
	}
	errCtx := map[string]any{"base_url": c.baseURL, "model": req.Model}

	var res generateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		Post("/api/generate")
	if err != nil {
		return llm.GenerateResult{}, errmodel.GenerationBackend("ollama request failed", errCtx, err)
	}
	if resp.IsError() {
		errCtx["status"] = resp.StatusCode()
		errCtx["body"] = resp.String()
		return llm.GenerateResult{}, errmodel.GenerationBackend(fmt.Sprintf("ollama returned status %d", resp.StatusCode()), errCtx, nil)
	}
	if res.Response == nil {
		errCtx["body"] = resp.String()
		return llm.GenerateResult{}, errmodel.GenerationBackend("ollama response has no 'response' field", errCtx, nil)
	}
	return llm.GenerateResult{
		Text:         *res.Response,
		PromptTokens: res.PromptEvalCount,
		OutputTokens: res.EvalCount,
		TotalTokens:  res.PromptEvalCount + res.EvalCount,
		Model:        req.Model,
	}, nil
}

// Ping checks that the server answers /api/version.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/api/version")
	if err != nil {
		return errmodel.GenerationBackend("ollama is not reachable", map[string]any{"base_url": c.baseURL}, err)
	}
	if resp.IsError() {
		return errmodel.GenerationBackend(fmt.Sprintf("ollama returned status %d", resp.StatusCode()), map[string]any{"base_url": c.baseURL}, nil)
	}
	return nil
}

// Factory builds an Ollama client; cfg keys: base_url, model, timeout.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) {
	return New(
		llm.String(cfg, "base_url", DefaultBaseURL),
		llm.String(cfg, "model", DefaultModel),
		llm.Duration(cfg, "timeout", defaultTimeout),
	), nil
}

func init() {
	_ = llm.Register("ollama", Factory)
}
