// Package llm defines text generation providers and a registry of their
// factories. Providers register themselves from their init functions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/cloudask/pkg/errmodel"
)

// Message represents a chat message with a role and content.
type Message struct {
	Role    string
	Content string
}

// GenerateResult contains the model's text output and token usage if available.
type GenerateResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// LLM defines a minimal chat/text generation interface.
type LLM interface {
	// Name returns provider name (e.g., "ollama").
	Name() string
	// Generate creates a completion from a list of messages. Implementations may ignore messages except the latest user if they are pure-completion models.
	Generate(ctx context.Context, messages []Message, opts map[string]any) (GenerateResult, error)
}

// Generate options understood by the built-in providers.
const (
	// OptFormat set to "json" asks the provider to constrain output to a JSON object.
	OptFormat = "format"
	// OptModel overrides the configured model for one call.
	OptModel = "model"
	// OptTemperature is a float64 sampling temperature.
	OptTemperature = "temperature"
)

// Call sends a single user prompt to m and returns the completion text.
// Every failure is a generation_backend_unavailable error.
func Call(ctx context.Context, m LLM, prompt string, opts map[string]any) (string, error) {
	if m == nil {
		return "", errmodel.GenerationBackend("no generation backend configured", nil, nil)
	}
	ctx, span := otel.Tracer("adapters/llm").Start(ctx, "LLM.Call", trace.WithAttributes(
		attribute.String("llm.provider", m.Name()),
		attribute.Int("llm.prompt_bytes", len(prompt)),
	))
	defer span.End()

	res, err := m.Generate(ctx, []Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		span.RecordError(err)
		var ce *errmodel.Error
		if errors.As(err, &ce) && ce.Code == errmodel.CodeBackendUnavailable {
			return "", ce
		}
		return "", errmodel.GenerationBackend(m.Name()+" generation failed", map[string]any{"provider": m.Name()}, err)
	}
	span.SetAttributes(
		attribute.String("llm.model", res.Model),
		attribute.Int("llm.prompt_tokens", res.PromptTokens),
		attribute.Int("llm.output_tokens", res.OutputTokens),
	)
	return res.Text, nil
}

// Factory constructs an LLM from provider-specific config.
// Common keys: model, base_url, api_key, timeout (time.Duration).
type Factory func(ctx context.Context, cfg map[string]any) (LLM, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an LLM factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("llm: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("llm: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("llm: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Range iterates all registered factories.
func Range(fn func(name string, f Factory)) {
	regMu.RLock()
	defer regMu.RUnlock()
	for n, f := range factories {
		fn(n, f)
	}
}

// Names returns the registered provider names, sorted.
func Names() []string {
	var out []string
	Range(func(name string, _ Factory) { out = append(out, name) })
	sort.Strings(out)
	return out
}

// String returns cfg[key] when it is a non-empty string, else def.
func String(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Duration returns cfg[key] when it is a positive time.Duration, else def.
func Duration(cfg map[string]any, key string, def time.Duration) time.Duration {
	if v, ok := cfg[key].(time.Duration); ok && v > 0 {
		return v
	}
	return def
}
