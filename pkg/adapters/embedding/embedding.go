// Package embedding defines the text embedding contract and a registry of
// provider factories. Providers register themselves from their init functions.
package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Vector represents a single embedding vector.
type Vector []float32

// Embedder produces embedding vectors from text inputs.
//
// Implementations must return exactly one vector per input, in order, and
// honor ctx on network calls.
type Embedder interface {
	// Name returns a short provider name (e.g., "ollama", "openai").
	Name() string
	// Embed returns one vector per input string, in order.
	Embed(ctx context.Context, inputs []string, opts map[string]any) ([]Vector, error)
}

// Factory constructs an Embedder from a provider-specific configuration map.
// Common keys: model, base_url, api_key, timeout (time.Duration).
type Factory func(ctx context.Context, cfg map[string]any) (Embedder, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an Embedder factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("embedding: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("embedding: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("embedding: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve retrieves a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Range calls fn for each registered provider name and factory.
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
