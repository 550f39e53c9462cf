// Package cloud enumerates AWS service clients and their operations.
//
// The AWS SDK for Go exposes an operation as a client method with the shape
//
//	func (c *Client) ListBuckets(ctx context.Context, params *ListBucketsInput, optFns ...func(*Options)) (*ListBucketsOutput, error)
//
// Operations discovers those methods with reflection once, at startup, and
// hands back callable Operation values; nothing in the request path resolves
// methods by name.
package cloud

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Service names a client constructor. Name is the short service id used as the
// tool name prefix and must not contain an underscore.
type Service struct {
	Name string
	New  func(cfg aws.Config) (any, error)
}

// Services returns the built-in services sorted by name.
func Services() []Service {
	out := []Service{
		{Name: "cloudformation", New: func(cfg aws.Config) (any, error) { return cloudformation.NewFromConfig(cfg), nil }},
		{Name: "dynamodb", New: func(cfg aws.Config) (any, error) { return dynamodb.NewFromConfig(cfg), nil }},
		{Name: "ec2", New: func(cfg aws.Config) (any, error) { return ec2.NewFromConfig(cfg), nil }},
		{Name: "ecs", New: func(cfg aws.Config) (any, error) { return ecs.NewFromConfig(cfg), nil }},
		{Name: "elb", New: func(cfg aws.Config) (any, error) { return elasticloadbalancing.NewFromConfig(cfg), nil }},
		{Name: "elbv2", New: func(cfg aws.Config) (any, error) { return elasticloadbalancingv2.NewFromConfig(cfg), nil }},
		{Name: "iam", New: func(cfg aws.Config) (any, error) { return iam.NewFromConfig(cfg), nil }},
		{Name: "lambda", New: func(cfg aws.Config) (any, error) { return lambda.NewFromConfig(cfg), nil }},
		{Name: "rds", New: func(cfg aws.Config) (any, error) { return rds.NewFromConfig(cfg), nil }},
		{Name: "route53", New: func(cfg aws.Config) (any, error) { return route53.NewFromConfig(cfg), nil }},
		{Name: "s3", New: newS3},
		{Name: "sts", New: func(cfg aws.Config) (any, error) { return sts.NewFromConfig(cfg), nil }},
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the built-in service with the given name.
func Lookup(name string) (Service, bool) {
	for _, s := range Services() {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

func newS3(cfg aws.Config) (any, error) {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Emulators and test servers do not resolve virtual-hosted bucket names.
		if cfg.BaseEndpoint != nil {
			o.UsePathStyle = true
		}
	}), nil
}
