package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wilhg/cloudask/pkg/adapters/embedding"
	fakeembed "github.com/wilhg/cloudask/pkg/adapters/embedding/fake"
	"github.com/wilhg/cloudask/pkg/adapters/vectorstore"
	"github.com/wilhg/cloudask/pkg/adapters/vectorstore/memory"
	"github.com/wilhg/cloudask/pkg/agent"
	"github.com/wilhg/cloudask/pkg/errmodel"
)

func catalog() []agent.ToolDescriptor {
	return []agent.ToolDescriptor{
		{Name: "s3_list_buckets", Description: "Fetches the list of S3 buckets in the account."},
		{Name: "ec2_describe_instances", Description: "Fetches details of EC2 instances in a specific AWS region."},
		{Name: "rds_describe_db_instances", Description: "Fetches details of RDS instances in a specific AWS region."},
		{Name: "ec2_describe_key_pairs", Description: "Fetches details of Key Pairs in a specific AWS region."},
		{Name: "iam_list_users", Description: "List users using the iam ListUsers operation."},
	}
}

func newIndex(t *testing.T, opts ...Option) (*Index, *memory.Store) {
	t.Helper()
	store := memory.New()
	ix := New(fakeembed.New(256), store, opts...)
	if err := ix.Add(context.Background(), catalog()); err != nil {
		t.Fatal(err)
	}
	return ix, store
}

func TestAddAndQuery(t *testing.T) {
	ix, store := newIndex(t, WithBatchSize(2))
	if ix.Len() != len(catalog()) {
		t.Fatalf("len=%d want %d", ix.Len(), len(catalog()))
	}
	if store.Len(ix.Namespace()) != ix.Len() {
		t.Fatalf("store len=%d", store.Len(ix.Namespace()))
	}
	if !strings.HasPrefix(ix.Namespace(), "tools-") {
		t.Fatalf("namespace=%s", ix.Namespace())
	}

	res, err := ix.Query(context.Background(), "list my s3 buckets", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 {
		t.Fatalf("got %d results", len(res))
	}
	if res[0].Descriptor.Name != "s3_list_buckets" {
		t.Fatalf("top=%s", res[0].Descriptor.Name)
	}
	for i := 1; i < len(res); i++ {
		if res[i].Distance < res[i-1].Distance {
			t.Fatalf("not sorted at %d: %v", i, res)
		}
	}
}

func TestQueryBounds(t *testing.T) {
	ix, _ := newIndex(t)
	for _, k := range []int{0, -1} {
		res, err := ix.Query(context.Background(), "anything", k)
		if err != nil || len(res) != 0 {
			t.Fatalf("k=%d: %v %v", k, res, err)
		}
	}
	res, err := ix.Query(context.Background(), "instances", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != ix.Len() {
		t.Fatalf("k not clamped: %d", len(res))
	}
	names := map[string]bool{}
	for _, d := range catalog() {
		names[d.Name] = true
	}
	for _, r := range res {
		if !names[r.Descriptor.Name] {
			t.Fatalf("result outside catalog: %s", r.Descriptor.Name)
		}
	}

	empty := New(fakeembed.New(8), memory.New())
	if res, _ := empty.Query(context.Background(), "x", 3); len(res) != 0 {
		t.Fatalf("empty index returned %v", res)
	}
}

func TestDuplicateNamesLeaveIndexUnchanged(t *testing.T) {
	ix, _ := newIndex(t)
	err := ix.Add(context.Background(), []agent.ToolDescriptor{{Name: "sts_get_caller_identity"}, {Name: "s3_list_buckets"}})
	if !errmodel.HasCode(err, CodeDuplicateTool) {
		t.Fatalf("want duplicate_tool, got %v", err)
	}
	err = ix.Add(context.Background(), []agent.ToolDescriptor{{Name: "a_b"}, {Name: "a_b"}})
	if !errmodel.HasCode(err, CodeDuplicateTool) {
		t.Fatalf("want duplicate_tool, got %v", err)
	}
	if ix.Len() != len(catalog()) {
		t.Fatalf("len changed to %d", ix.Len())
	}
}

type shortEmbedder struct{ embedding.Embedder }

func (s shortEmbedder) Embed(ctx context.Context, in []string, opts map[string]any) ([]embedding.Vector, error) {
	v, err := s.Embedder.Embed(ctx, in, opts)
	if err != nil || len(v) == 0 {
		return v, err
	}
	return v[:len(v)-1], nil
}

func TestEmbedderVectorCountMismatch(t *testing.T) {
	ix := New(shortEmbedder{fakeembed.New(8)}, memory.New())
	if err := ix.Add(context.Background(), catalog()); err == nil {
		t.Fatal("mismatch accepted")
	}
	if ix.Len() != 0 {
		t.Fatalf("len=%d", ix.Len())
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }
func (failingEmbedder) Embed(context.Context, []string, map[string]any) ([]embedding.Vector, error) {
	return nil, errors.New("backend down")
}

func TestEmbedFailure(t *testing.T) {
	ix := New(failingEmbedder{}, memory.New())
	if err := ix.Add(context.Background(), catalog()); err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("err=%v", err)
	}
}

func TestStaleStoreHitsDropped(t *testing.T) {
	ix, store := newIndex(t)
	// an item nobody added through the index
	vec, _ := fakeembed.New(256).Embed(context.Background(), []string{"list my s3 buckets"}, nil)
	_ = store.Upsert(context.Background(), []vectorstore.Item{{ID: "ghost_tool", Namespace: ix.Namespace(), Vector: vectorstore.Vector(vec[0])}})

	res, err := ix.Query(context.Background(), "list my s3 buckets", 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res {
		if r.Descriptor.Name == "ghost_tool" {
			t.Fatal("stale hit returned")
		}
	}
}

func TestCloseDeletesNamespace(t *testing.T) {
	ix, store := newIndex(t)
	if err := ix.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := store.Len(ix.Namespace()); n != 0 {
		t.Fatalf("namespace still holds %d items", n)
	}
}

func TestNamespacesAreFresh(t *testing.T) {
	a := New(fakeembed.New(8), memory.New())
	b := New(fakeembed.New(8), memory.New())
	if a.Namespace() == b.Namespace() {
		t.Fatal("namespaces collide")
	}
	if c := New(fakeembed.New(8), memory.New(), WithNamespace("fixed")); c.Namespace() != "fixed" {
		t.Fatalf("namespace=%s", c.Namespace())
	}
}

func TestText(t *testing.T) {
	d := agent.ToolDescriptor{Name: "s3_list_buckets", Description: "Lists buckets."}
	if got := Text(d); got != "s3_list_buckets: Lists buckets." {
		t.Fatalf("text=%q", got)
	}
}
