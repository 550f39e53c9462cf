package embedding_test

import (
	"context"
	"testing"
	"time"

	"github.com/wilhg/cloudask/pkg/adapters/embedding"
	fakeembed "github.com/wilhg/cloudask/pkg/adapters/embedding/fake"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	name := "test-embedder"
	if _, ok := embedding.Resolve(name); ok {
		t.Fatalf("%s unexpectedly pre-registered", name)
	}
	if err := embedding.Register(name, func(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) {
		return fakeembed.New(8), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := embedding.Register(name, fakeembed.Factory); err == nil {
		t.Fatal("duplicate registration accepted")
	}
	f, ok := embedding.Resolve(name)
	if !ok {
		t.Fatalf("resolve failed for %s", name)
	}
	e, err := f(ctx, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	vecs, err := e.Embed(ctx, []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 8 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	found := false
	for _, n := range embedding.Names() {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("names=%v", embedding.Names())
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := map[string]any{"model": "all-minilm", "empty": "", "timeout": 3 * time.Second, "bad": 3}
	if got := embedding.String(cfg, "model", "x"); got != "all-minilm" {
		t.Fatalf("model=%q", got)
	}
	if got := embedding.String(cfg, "empty", "x"); got != "x" {
		t.Fatalf("empty=%q", got)
	}
	if got := embedding.Duration(cfg, "timeout", time.Second); got != 3*time.Second {
		t.Fatalf("timeout=%v", got)
	}
	if got := embedding.Duration(cfg, "bad", time.Second); got != time.Second {
		t.Fatalf("bad=%v", got)
	}
}
