package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/wilhg/cloudask/pkg/adapters/cloud"
	fakeembed "github.com/wilhg/cloudask/pkg/adapters/embedding/fake"
	fakellm "github.com/wilhg/cloudask/pkg/adapters/llm/fake"
	"github.com/wilhg/cloudask/pkg/adapters/vectorstore/memory"
	"github.com/wilhg/cloudask/pkg/agent"
	"github.com/wilhg/cloudask/pkg/catalog"
	"github.com/wilhg/cloudask/pkg/errmodel"
	"github.com/wilhg/cloudask/pkg/index"
	"github.com/wilhg/cloudask/pkg/prompt"
)

const listBucketsXML = `<?xml version="1.0" encoding="UTF-8"?>
<ListAllMyBucketsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Owner><ID>owner</ID><DisplayName>owner</DisplayName></Owner>
  <Buckets>
    <Bucket><Name>alpha-logs</Name><CreationDate>2024-01-02T03:04:05.000Z</CreationDate></Bucket>
    <Bucket><Name>beta-assets</Name><CreationDate>2024-02-03T04:05:06.000Z</CreationDate></Bucket>
  </Buckets>
</ListAllMyBucketsResult>`

type fixture struct {
	index    *index.Index
	registry *agent.Registry
	s3Calls  atomic.Int32
}

// newFixture indexes the real S3 catalog against a mock S3 endpoint.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.s3Calls.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listBucketsXML))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")
	ctx := context.Background()
	cfg, err := cloud.LoadConfig(ctx, cloud.Options{
		Region:      "us-east-1",
		Endpoint:    srv.URL,
		MaxAttempts: 1,
		Credentials: credentials.NewStaticCredentialsProvider("AKIDTEST", "SECRETTEST", ""),
	})
	if err != nil {
		t.Fatal(err)
	}
	s3svc, _ := cloud.Lookup("s3")
	cat, err := catalog.Build(ctx, cfg, []cloud.Service{s3svc})
	if err != nil {
		t.Fatal(err)
	}
	f.registry = agent.NewRegistry()
	if err := cat.Register(f.registry); err != nil {
		t.Fatal(err)
	}
	f.index = index.New(fakeembed.New(1024), memory.New())
	if err := f.index.Add(ctx, cat.Descriptors()); err != nil {
		t.Fatal(err)
	}
	if f.index.Len() != f.registry.Len() {
		t.Fatalf("index len %d != catalog len %d", f.index.Len(), f.registry.Len())
	}
	return f
}

func TestTurnListBuckets(t *testing.T) {
	f := newFixture(t)
	model := fakellm.New(
		"```json\n{\"tool\": \"s3_list_buckets\", \"parameters\": {}}\n```",
		"You have two buckets: alpha-logs and beta-assets.",
	)
	r := NewRunner(f.index, f.registry, model)

	res := r.Turn(context.Background(), "list my s3 buckets")
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if len(res.Candidates) != DefaultTopK {
		t.Fatalf("candidates=%d", len(res.Candidates))
	}
	if res.Candidates[0].Name != "s3_list_buckets" {
		t.Fatalf("top candidate=%s", res.Candidates[0].Name)
	}
	if !strings.Contains(res.Prompt, `User Query: "list my s3 buckets"`) {
		t.Fatalf("prompt=%s", res.Prompt)
	}
	if res.Invocation == nil || res.Invocation.Tool != "s3_list_buckets" {
		t.Fatalf("invocation=%+v", res.Invocation)
	}
	buckets, _ := res.Output.(map[string]any)["Buckets"].([]any)
	if len(buckets) != 2 {
		t.Fatalf("output=%v", res.Output)
	}
	if res.Summary != "You have two buckets: alpha-logs and beta-assets." {
		t.Fatalf("summary=%q", res.Summary)
	}
	prompts := model.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("model called %d times", len(prompts))
	}
	if !strings.HasPrefix(prompts[1], "Summarize the following s3_list_buckets data: ") ||
		!strings.Contains(prompts[1], "alpha-logs") || !strings.Contains(prompts[1], "beta-assets") {
		t.Fatalf("summary prompt=%s", prompts[1])
	}
	if model.Options()[0]["format"] != "json" {
		t.Fatal("selection call should request JSON")
	}
	if n := f.s3Calls.Load(); n != 1 {
		t.Fatalf("s3 calls=%d", n)
	}
}

func TestTurnFailures(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name    string
		model   *fakellm.LLM
		code    string
		invoked bool
	}{
		{"unknown tool", fakellm.New(`{"tool": "doesnotexist_op", "parameters": {}}`), errmodel.CodeUnknownTool, true},
		{"bad parameters", fakellm.New(`{"tool": "s3_list_buckets", "parameters": {"Colour": "red"}}`), errmodel.CodeInvalidParameters, true},
		{"unparseable", fakellm.New(`I think you want the bucket tool.`), errmodel.CodeUnparseable, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := NewRunner(f.index, f.registry, tc.model).Turn(context.Background(), "list my s3 buckets")
			if !errmodel.HasCode(res.Err, tc.code) {
				t.Fatalf("want %s, got %v", tc.code, res.Err)
			}
			if (res.Invocation != nil) != tc.invoked {
				t.Fatalf("invocation=%+v", res.Invocation)
			}
			if res.Summary != "" {
				t.Fatal("summary on failure")
			}
		})
	}

	down := fakellm.New()
	down.Err = errors.New("dial tcp 127.0.0.1:11434: connection refused")
	res := NewRunner(f.index, f.registry, down).Turn(context.Background(), "list my s3 buckets")
	if !errmodel.HasCode(res.Err, errmodel.CodeBackendUnavailable) {
		t.Fatalf("want generation_backend_unavailable, got %v", res.Err)
	}
	if n := f.s3Calls.Load(); n != 0 {
		t.Fatalf("s3 called %d times on failed turns", n)
	}
}

func TestTurnRespectsBudgetAndTopK(t *testing.T) {
	f := newFixture(t)
	model := fakellm.New(`{"tool":"s3_list_buckets"}`, "ok")
	r := NewRunner(f.index, f.registry, model, WithTopK(3), WithBudget(prompt.Budget{MaxTokens: 1}), WithSummaryLimit(20))
	res := r.Turn(context.Background(), "list my s3 buckets")
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("budget kept %d candidates", len(res.Candidates))
	}
	if p := model.Prompts()[1]; !strings.Contains(p, "[truncated") {
		t.Fatalf("summary prompt not truncated: %s", p)
	}
}

type panickyRetriever struct{}

func (panickyRetriever) Query(context.Context, string, int) ([]index.Result, error) {
	panic("corrupt index")
}

func TestTurnRecoversPanics(t *testing.T) {
	res := NewRunner(panickyRetriever{}, agent.NewRegistry(), fakellm.New()).Turn(context.Background(), "hi")
	if res.Err == nil || !strings.Contains(res.Err.Error(), "corrupt index") {
		t.Fatalf("err=%v", res.Err)
	}
}
