package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/cloudask/pkg/errmodel"
)

// Registry keeps tools by exact name, in registration order.
// A Registry is built once at startup and then only read.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	allowed  map[string]bool
	validate ValidateFunc
	timeout  time.Duration
}

// RegistryOption configures a Registry at construction time.
type RegistryOption func(*Registry)

// WithAllowedPermissions restricts Dispatch to tools whose permissions are all in names.
// Without this option every permission is allowed.
func WithAllowedPermissions(names ...string) RegistryOption {
	return func(r *Registry) {
		r.allowed = make(map[string]bool, len(names))
		for _, n := range names {
			r.allowed[n] = true
		}
	}
}

// WithValidator replaces the parameter validator. Defaults to JSONSchemaValidator.
func WithValidator(v ValidateFunc) RegistryOption {
	return func(r *Registry) {
		if v != nil {
			r.validate = v
		}
	}
}

// WithTimeout bounds every tool invocation. Zero disables the bound.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{tools: map[string]Tool{}, validate: JSONSchemaValidator}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register registers a Tool by its descriptor name.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	d := t.Describe()
	if d.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool %q already registered", d.Name)
	}
	r.tools[d.Name] = t
	r.order = append(r.order, d.Name)
	return nil
}

// Resolve returns a Tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Descriptors returns every descriptor in registration order.
func (r *Registry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n].Describe())
	}
	return out
}

// Dispatch resolves name, checks permissions, validates args against the tool's
// input schema and invokes it. Errors are one of unknown_tool, forbidden,
// invalid_parameters or tool_execution_failed.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	ctx, span := otel.Tracer("agent/registry").Start(ctx, "Registry.Dispatch", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	t, ok := r.Resolve(name)
	if !ok || t == nil {
		err := errmodel.UnknownTool(name)
		span.RecordError(err)
		return nil, err
	}
	out, err := r.invoke(ctx, t, args)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

func (r *Registry) invoke(ctx context.Context, t Tool, args map[string]any) (any, error) {
	d := t.Describe()
	// permissions
	if r.allowed != nil {
		for _, p := range d.Permissions {
			if !r.allowed[p.Name] {
				return nil, errmodel.Policy(errmodel.CodeForbidden, "permission denied for tool", map[string]any{"permission": p.Name, "tool": d.Name})
			}
		}
	}
	args = CanonicalizeArgs(args, d.ParameterNames())
	if err := r.validate(d.InputSchema, args); err != nil {
		return nil, errmodel.Validation(errmodel.CodeInvalidParameters, "tool input validation failed: "+err.Error(), map[string]any{"tool": d.Name, "error": err.Error()})
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := t.Invoke(ctx, args)
	if err != nil {
		var ce *errmodel.Error
		if errors.As(err, &ce) && ce.Category == errmodel.CategoryValidation {
			// Decoding failures inside the handler are still parameter problems.
			return nil, ce
		}
		return nil, errmodel.ToolExecution(d.Name, apiContext(err), err)
	}
	return out, nil
}

func apiContext(err error) map[string]any {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return nil
	}
	return map[string]any{"api_code": ae.ErrorCode(), "api_message": ae.ErrorMessage()}
}
