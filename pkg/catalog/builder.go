// Package catalog turns SDK service clients into agent tools.
//
// Every API operation of every configured service becomes one tool named
// <service>_<snake_case_operation>, e.g. s3_list_buckets. The tool's input
// schema is reflected from the SDK input struct and its handler calls the
// operation through the cloud adapter.
package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/stoewer/go-strcase"

	"github.com/wilhg/cloudask/pkg/adapters/cloud"
	"github.com/wilhg/cloudask/pkg/agent"
	"github.com/wilhg/cloudask/pkg/errmodel"
)

// Catalog is the ordered set of tools built from the configured services.
type Catalog struct {
	Tools []agent.FuncTool
	// Skipped holds one CatalogBuild error per service that could not be enumerated.
	Skipped []error
}

// Option configures Build.
type Option func(*builder)

type builder struct {
	log          zerolog.Logger
	descriptions map[string]string
}

// WithLogger sets the logger used for skipped services and operations.
func WithLogger(l zerolog.Logger) Option { return func(b *builder) { b.log = l } }

// WithDescriptions overrides tool descriptions by tool name.
func WithDescriptions(d map[string]string) Option {
	return func(b *builder) { b.descriptions = d }
}

// Build enumerates the operations of services in order. A service whose
// client cannot be constructed is skipped and recorded in Catalog.Skipped;
// the build only fails when ctx is done.
func Build(ctx context.Context, cfg aws.Config, services []cloud.Service, opts ...Option) (*Catalog, error) {
	b := &builder{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	c := &Catalog{}
	seen := map[string]bool{}
	for _, svc := range services {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tools, err := b.service(cfg, svc)
		if err != nil {
			b.log.Warn().Err(err).Str("service", svc.Name).Msg("skipping service")
			c.Skipped = append(c.Skipped, err)
			continue
		}
		for _, t := range tools {
			if seen[t.Descriptor.Name] {
				b.log.Debug().Str("tool", t.Descriptor.Name).Msg("duplicate tool name")
				continue
			}
			seen[t.Descriptor.Name] = true
			c.Tools = append(c.Tools, t)
		}
	}
	b.log.Info().Int("tools", len(c.Tools)).Int("skipped_services", len(c.Skipped)).Msg("catalog built")
	return c, nil
}

func (b *builder) service(cfg aws.Config, svc cloud.Service) (tools []agent.FuncTool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tools, err = nil, errmodel.CatalogBuild(svc.Name, fmt.Errorf("panic: %v", rec))
		}
	}()
	if svc.New == nil {
		return nil, errmodel.CatalogBuild(svc.Name, fmt.Errorf("no client constructor"))
	}
	client, err := svc.New(cfg)
	if err != nil {
		return nil, errmodel.CatalogBuild(svc.Name, err)
	}
	ops := cloud.Operations(client)
	if len(ops) == 0 {
		return nil, errmodel.CatalogBuild(svc.Name, fmt.Errorf("client exposes no operations"))
	}
	r := newReflector()
	for _, op := range ops {
		method := strcase.SnakeCase(op.Name)
		if method == "" {
			continue
		}
		name := svc.Name + "_" + method
		schema, params, err := inputShape(r, op.Input, op.RegionOverride)
		if err != nil {
			b.log.Debug().Err(err).Str("tool", name).Msg("skipping operation")
			continue
		}
		tools = append(tools, agent.FuncTool{
			Descriptor: agent.ToolDescriptor{
				Name:        name,
				Description: describe(name, svc.Name, op.Name, b.descriptions),
				Parameters:  params,
				InputSchema: schema,
				Permissions: permissionsFor(method),
			},
			Handler: op.Invoke,
		})
	}
	return tools, nil
}

// Descriptors returns the tool descriptors in catalog order.
func (c *Catalog) Descriptors() []agent.ToolDescriptor {
	out := make([]agent.ToolDescriptor, 0, len(c.Tools))
	for _, t := range c.Tools {
		out = append(out, t.Descriptor)
	}
	return out
}

// Register installs every tool into reg.
func (c *Catalog) Register(reg *agent.Registry) error {
	for _, t := range c.Tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
