// Package fake is a scripted LLM for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/wilhg/cloudask/pkg/adapters/llm"
)

// LLM returns scripted responses in order and records every prompt it receives.
type LLM struct {
	mu        sync.Mutex
	responses []string
	next      int
	prompts   []string
	opts      []map[string]any

	// Err, when set, is returned by every call.
	Err error
}

// New returns an LLM that answers with responses in order.
func New(responses ...string) *LLM {
	return &LLM{responses: responses}
}

func (f *LLM) Name() string { return "fake" }

func (f *LLM) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var prompt string
	for _, m := range messages {
		prompt += m.Content
	}
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if f.Err != nil {
		return llm.GenerateResult{}, f.Err
	}
	if err := ctx.Err(); err != nil {
		return llm.GenerateResult{}, err
	}
	if f.next >= len(f.responses) {
		return llm.GenerateResult{}, fmt.Errorf("fake llm: no scripted response for call %d", f.next+1)
	}
	out := f.responses[f.next]
	f.next++
	return llm.GenerateResult{Text: out, Model: "fake"}, nil
}

// Prompts returns the prompts received so far.
func (f *LLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Options returns the options passed with each call.
func (f *LLM) Options() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.opts...)
}

// Factory builds a fake LLM; cfg key responses ([]string) scripts the answers.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) {
	rs, _ := cfg["responses"].([]string)
	return New(rs...), nil
}

func init() {
	_ = llm.Register("fake", Factory)
}
