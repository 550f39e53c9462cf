// Package runtime runs one question through retrieval, tool selection,
// dispatch and summarization, and drives the interactive prompt loop.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/cloudask/pkg/adapters/llm"
	"github.com/wilhg/cloudask/pkg/agent"
	"github.com/wilhg/cloudask/pkg/index"
	"github.com/wilhg/cloudask/pkg/prompt"
)

const DefaultTopK = 5

// Retriever returns the tool descriptors nearest to a question.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]index.Result, error)
}

// Dispatcher invokes a tool by exact name.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) (any, error)
}

// TurnResult is everything one turn produced. Err is set when any step
// failed; fields filled before the failure are kept.
type TurnResult struct {
	Query      string
	Candidates []agent.ToolDescriptor
	Prompt     string
	Invocation *agent.Invocation
	Output     any
	Summary    string
	Err        error
}

// Runner answers questions; it holds no per-turn state.
type Runner struct {
	index    Retriever
	registry Dispatcher
	model    llm.LLM

	budget       prompt.Budget
	topK         int
	summaryLimit int
	log          zerolog.Logger
}

// RunnerOption configures the Runner at construction time.
type RunnerOption func(*Runner)

// WithTopK sets how many candidates are retrieved per question.
func WithTopK(k int) RunnerOption {
	return func(r *Runner) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithBudget bounds the selection prompt.
func WithBudget(b prompt.Budget) RunnerOption { return func(r *Runner) { r.budget = b } }

// WithSummaryLimit caps the bytes of tool output placed in the summary prompt.
func WithSummaryLimit(n int) RunnerOption { return func(r *Runner) { r.summaryLimit = n } }

// WithLogger sets the runner's logger.
func WithLogger(l zerolog.Logger) RunnerOption { return func(r *Runner) { r.log = l } }

// NewRunner constructs a new Runner.
func NewRunner(idx Retriever, reg Dispatcher, model llm.LLM, opts ...RunnerOption) *Runner {
	r := &Runner{index: idx, registry: reg, model: model, topK: DefaultTopK, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Turn answers one question. It never panics; failures are returned in
// TurnResult.Err.
func (r *Runner) Turn(ctx context.Context, query string) (res TurnResult) {
	ctx, span := otel.Tracer("runtime/runner").Start(ctx, "Runner.Turn", trace.WithAttributes(
		attribute.Int("turn.top_k", r.topK),
	))
	defer span.End()
	res.Query = query
	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("turn panicked: %v", rec)
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			r.log.Debug().Err(res.Err).Str("query", query).Msg("turn failed")
		}
	}()

	hits, err := r.index.Query(ctx, query, r.topK)
	if err != nil {
		res.Err = err
		return res
	}
	candidates := make([]agent.ToolDescriptor, len(hits))
	for i, h := range hits {
		candidates[i] = h.Descriptor
	}
	candidates, fit := r.budget.Fit(query, candidates)
	if fit.Dropped > 0 {
		r.log.Debug().Int("dropped", fit.Dropped).Int("tokens", fit.Tokens).Msg("candidates trimmed to prompt budget")
	}
	res.Candidates = candidates
	res.Prompt = prompt.ComposeSelection(query, candidates)

	completion, err := llm.Call(ctx, r.model, res.Prompt, map[string]any{llm.OptFormat: "json"})
	if err != nil {
		res.Err = err
		return res
	}
	inv, err := agent.ParseInvocation(completion)
	if err != nil {
		res.Err = err
		return res
	}
	res.Invocation = &inv
	span.SetAttributes(attribute.String("turn.tool", inv.Tool))

	out, err := r.registry.Dispatch(ctx, inv.Tool, inv.Parameters)
	if err != nil {
		res.Err = err
		return res
	}
	res.Output = out

	data, err := json.Marshal(out)
	if err != nil {
		res.Err = fmt.Errorf("encode %s output: %w", inv.Tool, err)
		return res
	}
	summaryPrompt := prompt.ComposeSummary(inv.Tool, data, r.summaryLimit)
	for _, is := range prompt.Lint(summaryPrompt) {
		r.log.Warn().Str("rule", is.Rule).Str("tool", inv.Tool).Msg(is.Message)
	}
	summary, err := llm.Call(ctx, r.model, summaryPrompt, nil)
	if err != nil {
		res.Err = err
		return res
	}
	res.Summary = strings.TrimSpace(summary)
	return res
}
