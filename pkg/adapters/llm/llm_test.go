package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wilhg/cloudask/pkg/adapters/llm"
	fakellm "github.com/wilhg/cloudask/pkg/adapters/llm/fake"
	"github.com/wilhg/cloudask/pkg/errmodel"
)

func TestCall(t *testing.T) {
	m := fakellm.New("first", "second")
	out, err := llm.Call(context.Background(), m, "hello", map[string]any{llm.OptFormat: "json"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "first" {
		t.Fatalf("out=%q", out)
	}
	if p := m.Prompts(); len(p) != 1 || p[0] != "hello" {
		t.Fatalf("prompts=%v", p)
	}
	if o := m.Options(); o[0][llm.OptFormat] != "json" {
		t.Fatalf("options=%v", o)
	}
}

func TestCallWrapsFailures(t *testing.T) {
	m := fakellm.New()
	m.Err = errors.New("connection refused")
	_, err := llm.Call(context.Background(), m, "hello", nil)
	if !errmodel.HasCode(err, errmodel.CodeBackendUnavailable) {
		t.Fatalf("want generation_backend_unavailable, got %v", err)
	}
	if !errors.Is(err, m.Err) {
		t.Fatal("cause lost")
	}
	if _, err := llm.Call(context.Background(), nil, "hello", nil); !errmodel.HasCode(err, errmodel.CodeBackendUnavailable) {
		t.Fatalf("nil backend: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	f, ok := llm.Resolve("fake")
	if !ok {
		t.Fatal("fake provider not registered")
	}
	m, err := f(context.Background(), map[string]any{"responses": []string{"ok"}})
	if err != nil {
		t.Fatal(err)
	}
	if out, _ := llm.Call(context.Background(), m, "x", nil); out != "ok" {
		t.Fatalf("out=%q", out)
	}
	if err := llm.Register("fake", f); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}
