package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/wilhg/cloudask/pkg/adapters/cloud"
	"github.com/wilhg/cloudask/pkg/agent"
	"github.com/wilhg/cloudask/pkg/errmodel"
)

type widgetOptions struct{}

type WidgetFilter struct {
	Name   *string
	Values []string
}

type ListWidgetsInput struct {
	Color    *string
	MaxItems *int32
	Since    *time.Time
	Tags     []string
	Payload  []byte
	Filter   *WidgetFilter
}

type ListWidgetsOutput struct {
	Widgets []string
}

type DeleteWidgetInput struct{ Name *string }
type DeleteWidgetOutput struct{}

type widgetClient struct{}

func (widgetClient) ListWidgets(ctx context.Context, in *ListWidgetsInput, optFns ...func(*widgetOptions)) (*ListWidgetsOutput, error) {
	color := "plain"
	if in.Color != nil {
		color = *in.Color
	}
	return &ListWidgetsOutput{Widgets: []string{color}}, nil
}

func (widgetClient) DeleteWidget(ctx context.Context, in *DeleteWidgetInput, optFns ...func(*widgetOptions)) (*DeleteWidgetOutput, error) {
	return &DeleteWidgetOutput{}, nil
}

func testServices() []cloud.Service {
	return []cloud.Service{
		{Name: "broken", New: func(aws.Config) (any, error) { return nil, errors.New("no endpoint") }},
		{Name: "panicky", New: func(aws.Config) (any, error) { panic("boom") }},
		{Name: "widget", New: func(aws.Config) (any, error) { return widgetClient{}, nil }},
	}
}

func find(t *testing.T, c *Catalog, name string) agent.FuncTool {
	t.Helper()
	for _, tool := range c.Tools {
		if tool.Descriptor.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not in catalog", name)
	return agent.FuncTool{}
}

func TestBuildSkipsBrokenServices(t *testing.T) {
	c, err := Build(context.Background(), aws.Config{}, testServices())
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Skipped) != 2 {
		t.Fatalf("skipped=%v", c.Skipped)
	}
	for _, e := range c.Skipped {
		if !errmodel.HasCode(e, errmodel.CodeCatalogBuild) {
			t.Fatalf("want catalog_build_failed, got %v", e)
		}
	}
	if len(c.Tools) != 2 {
		t.Fatalf("tools=%d want 2", len(c.Tools))
	}
	if c.Tools[0].Descriptor.Name != "widget_delete_widget" || c.Tools[1].Descriptor.Name != "widget_list_widgets" {
		t.Fatalf("names=%v", c.Descriptors())
	}
}

func TestBuildDescriptor(t *testing.T) {
	c, _ := Build(context.Background(), aws.Config{}, testServices())
	d := find(t, c, "widget_list_widgets").Descriptor

	if d.Description != "List widgets using the widget ListWidgets operation." {
		t.Fatalf("description=%q", d.Description)
	}
	want := []agent.Parameter{
		{Name: "Color", Type: "string"},
		{Name: "MaxItems", Type: "integer"},
		{Name: "Since", Type: "timestamp"},
		{Name: "Tags", Type: "array"},
		{Name: "Payload", Type: "blob"},
		{Name: "Filter", Type: "object"},
	}
	if len(d.Parameters) != len(want) {
		t.Fatalf("parameters=%v", d.Parameters)
	}
	for i := range want {
		if d.Parameters[i] != want[i] {
			t.Fatalf("parameter %d = %+v want %+v", i, d.Parameters[i], want[i])
		}
	}
	if err := agent.CompileJSONSchema(d.InputSchema); err != nil {
		t.Fatalf("schema: %v\n%s", err, d.InputSchema)
	}
	if d.Permissions[0].Name != agent.PermissionRead {
		t.Fatalf("list should be read-only: %v", d.Permissions)
	}
	if p := find(t, c, "widget_delete_widget").Descriptor.Permissions[0].Name; p != agent.PermissionWrite {
		t.Fatalf("delete permission=%s", p)
	}
}

func TestRegisteredToolsDispatch(t *testing.T) {
	c, _ := Build(context.Background(), aws.Config{}, testServices())
	reg := agent.NewRegistry(agent.WithAllowedPermissions(agent.PermissionRead))
	if err := c.Register(reg); err != nil {
		t.Fatal(err)
	}
	out, err := reg.Dispatch(context.Background(), "widget_list_widgets", map[string]any{"color": "red"})
	if err != nil {
		t.Fatal(err)
	}
	ws, _ := out.(map[string]any)["Widgets"].([]any)
	if len(ws) != 1 || ws[0] != "red" {
		t.Fatalf("out=%v", out)
	}
	if _, err := reg.Dispatch(context.Background(), "widget_list_widgets", map[string]any{"Colour": "red"}); !errmodel.HasCode(err, errmodel.CodeInvalidParameters) {
		t.Fatalf("want invalid_parameters, got %v", err)
	}
	if _, err := reg.Dispatch(context.Background(), "widget_delete_widget", nil); !errmodel.HasCode(err, errmodel.CodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
}

func TestBuildS3Catalog(t *testing.T) {
	svc, ok := cloud.Lookup("s3")
	if !ok {
		t.Fatal("s3 service missing")
	}
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDTEST", "SECRETTEST", ""),
	}
	c, err := Build(context.Background(), cfg, []cloud.Service{svc})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Skipped) != 0 {
		t.Fatalf("skipped=%v", c.Skipped)
	}
	lb := find(t, c, "s3_list_buckets").Descriptor
	if lb.Description != "Fetches the list of S3 buckets in the account." {
		t.Fatalf("description=%q", lb.Description)
	}
	if lb.Permissions[0].Name != agent.PermissionRead {
		t.Fatalf("permissions=%v", lb.Permissions)
	}
	if n := len(lb.Parameters); n == 0 || lb.Parameters[n-1] != (agent.Parameter{Name: "region", Type: "string"}) {
		t.Fatalf("parameters=%v", lb.Parameters)
	}
	cb := find(t, c, "s3_create_bucket").Descriptor
	if cb.Description != "Create bucket using the s3 CreateBucket operation." {
		t.Fatalf("description=%q", cb.Description)
	}
	if cb.Permissions[0].Name != agent.PermissionWrite {
		t.Fatalf("permissions=%v", cb.Permissions)
	}
	for _, name := range []string{"s3_list_buckets", "s3_put_object", "s3_get_object"} {
		if err := agent.CompileJSONSchema(find(t, c, name).Descriptor.InputSchema); err != nil {
			t.Fatalf("%s schema: %v", name, err)
		}
	}
}

func TestBuildHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Build(ctx, aws.Config{}, testServices()); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestDescriptionOverrides(t *testing.T) {
	c, _ := Build(context.Background(), aws.Config{}, testServices(), WithDescriptions(map[string]string{
		"widget_list_widgets": "Lists every widget.",
	}))
	if d := find(t, c, "widget_list_widgets").Descriptor.Description; d != "Lists every widget." {
		t.Fatalf("description=%q", d)
	}
}

func TestDispatchWithRegionParameter(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<ListAllMyBucketsResult><Buckets><Bucket><Name>west-logs</Name></Bucket></Buckets></ListAllMyBucketsResult>`))
	}))
	defer srv.Close()

	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")
	cfg, err := cloud.LoadConfig(context.Background(), cloud.Options{
		Region:      "us-east-1",
		Endpoint:    srv.URL,
		MaxAttempts: 1,
		Credentials: credentials.NewStaticCredentialsProvider("AKIDTEST", "SECRETTEST", ""),
	})
	if err != nil {
		t.Fatal(err)
	}
	svc, _ := cloud.Lookup("s3")
	c, err := Build(context.Background(), cfg, []cloud.Service{svc})
	if err != nil {
		t.Fatal(err)
	}
	reg := agent.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Dispatch(context.Background(), "s3_list_buckets", map[string]any{"Region": "us-west-2"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(auth, "/us-west-2/s3/") {
		t.Fatalf("request signed for the wrong region: %s", auth)
	}
	if _, err := reg.Dispatch(context.Background(), "s3_list_buckets", map[string]any{"region": ""}); !errmodel.HasCode(err, errmodel.CodeInvalidParameters) {
		t.Fatalf("want invalid_parameters for empty region, got %v", err)
	}
}
