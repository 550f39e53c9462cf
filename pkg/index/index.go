// Package index embeds tool descriptors and answers nearest-neighbor queries
// over them. Distances are Euclidean; results are ordered nearest first.
package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/cloudask/pkg/adapters/embedding"
	"github.com/wilhg/cloudask/pkg/adapters/vectorstore"
	"github.com/wilhg/cloudask/pkg/agent"
	"github.com/wilhg/cloudask/pkg/errmodel"
)

// CodeDuplicateTool is the validation code for a descriptor name added twice.
const CodeDuplicateTool = "duplicate_tool"

const DefaultBatchSize = 1000

// Result is one query hit.
type Result struct {
	Descriptor agent.ToolDescriptor
	Distance   float32
}

// Index keeps descriptors aligned with their stored vectors: descriptor i is
// stored under its name with metadata position i.
type Index struct {
	embedder  embedding.Embedder
	store     vectorstore.VectorStore
	namespace string
	batchSize int
	log       zerolog.Logger

	mu          sync.RWMutex
	descriptors []agent.ToolDescriptor
	byName      map[string]int
}

// Option configures an Index.
type Option func(*Index)

// WithBatchSize sets how many descriptors are embedded per request.
func WithBatchSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithNamespace overrides the generated per-process namespace.
func WithNamespace(ns string) Option {
	return func(ix *Index) {
		if ns != "" {
			ix.namespace = ns
		}
	}
}

// WithLogger sets the logger for batch progress.
func WithLogger(l zerolog.Logger) Option { return func(ix *Index) { ix.log = l } }

// New returns an empty Index writing to a fresh tools-<uuid> namespace of store.
func New(e embedding.Embedder, store vectorstore.VectorStore, opts ...Option) *Index {
	ix := &Index{
		embedder:  e,
		store:     store,
		namespace: "tools-" + uuid.NewString(),
		batchSize: DefaultBatchSize,
		log:       zerolog.Nop(),
		byName:    map[string]int{},
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Text is the string embedded for a descriptor.
func Text(d agent.ToolDescriptor) string {
	return d.Name + ": " + d.Description
}

// Add embeds and stores ds after the descriptors already indexed. A name that
// is already indexed, or repeated within ds, fails before anything is stored.
func (ix *Index) Add(ctx context.Context, ds []agent.ToolDescriptor) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	seen := make(map[string]bool, len(ds))
	for _, d := range ds {
		if _, ok := ix.byName[d.Name]; ok || seen[d.Name] {
			return errmodel.Validation(CodeDuplicateTool, "tool already indexed", map[string]any{"tool": d.Name})
		}
		if d.Name == "" {
			return errmodel.Validation(CodeDuplicateTool, "tool name is empty", nil)
		}
		seen[d.Name] = true
	}

	base := len(ix.descriptors)
	for start := 0; start < len(ds); start += ix.batchSize {
		end := min(start+ix.batchSize, len(ds))
		batch := ds[start:end]
		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = Text(d)
		}
		vecs, err := ix.embedder.Embed(ctx, texts, map[string]any{"task_type": "RETRIEVAL_DOCUMENT"})
		if err != nil {
			return fmt.Errorf("index: embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("index: embedder returned %d vectors for %d descriptors", len(vecs), len(batch))
		}
		items := make([]vectorstore.Item, len(batch))
		for i, d := range batch {
			items[i] = vectorstore.Item{
				ID:        d.Name,
				Namespace: ix.namespace,
				Vector:    vectorstore.Vector(vecs[i]),
				Metadata:  map[string]any{"position": base + start + i},
			}
		}
		if err := ix.store.Upsert(ctx, items); err != nil {
			return fmt.Errorf("index: store batch %d-%d: %w", start, end, err)
		}
		ix.log.Info().Int("from", start).Int("to", end).Int("total", len(ds)).Msg("indexed tool batch")
	}
	for i, d := range ds {
		ix.byName[d.Name] = base + i
	}
	ix.descriptors = append(ix.descriptors, ds...)
	return nil
}

// Query returns up to k descriptors nearest to text. k <= 0 returns nothing;
// k larger than Len is clamped.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Result, error) {
	ctx, span := otel.Tracer("index").Start(ctx, "Index.Query", trace.WithAttributes(
		attribute.Int("index.k", k),
		attribute.String("index.namespace", ix.namespace),
	))
	defer span.End()

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.descriptors) == 0 {
		return nil, nil
	}
	k = min(k, len(ix.descriptors))

	vecs, err := ix.embedder.Embed(ctx, []string{text}, map[string]any{"task_type": "RETRIEVAL_QUERY"})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("index: embedder returned %d vectors for the query", len(vecs))
	}
	matches, err := ix.store.Query(ctx, vectorstore.Vector(vecs[0]), k, vectorstore.Filter{Namespace: ix.namespace})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("index: query store: %w", err)
	}
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		pos, ok := ix.byName[m.Item.ID]
		if !ok {
			// left over from a failed Add
			continue
		}
		out = append(out, Result{Descriptor: ix.descriptors[pos], Distance: m.Distance})
		if len(out) == k {
			break
		}
	}
	span.SetAttributes(attribute.Int("index.results", len(out)))
	return out, nil
}

// Len returns the number of indexed descriptors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.descriptors)
}

// Descriptors returns the indexed descriptors in insertion order.
func (ix *Index) Descriptors() []agent.ToolDescriptor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]agent.ToolDescriptor(nil), ix.descriptors...)
}

// Namespace returns the store namespace used by this index.
func (ix *Index) Namespace() string { return ix.namespace }

// Close deletes the namespace when the store supports it.
func (ix *Index) Close(ctx context.Context) error {
	if d, ok := ix.store.(vectorstore.NamespaceDeleter); ok {
		return d.DeleteNamespace(ctx, ix.namespace)
	}
	return nil
}
