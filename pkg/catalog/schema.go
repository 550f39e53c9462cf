package catalog

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/wilhg/cloudask/pkg/adapters/cloud"
	"github.com/wilhg/cloudask/pkg/agent"
)

var one uint64 = 1

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		// inline the input struct itself; nested shapes go to $defs
		ExpandedStruct: true,
		// no $id so $defs refs resolve against the in-memory resource
		Anonymous: true,
		// SDK inputs carry no json tags, so nothing is required client-side
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  false,
	}
}

// inputShape reflects the JSON schema of an SDK input struct and returns it
// with the ordered top-level parameters. With regional set, the reserved
// region parameter is appended.
func inputShape(r *jsonschema.Reflector, t reflect.Type, regional bool) (schema []byte, params []agent.Parameter, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reflect %s: %v", t.Name(), rec)
		}
	}()
	s := r.ReflectFromType(t)
	if s == nil {
		return nil, nil, fmt.Errorf("reflect %s: no schema", t.Name())
	}
	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			params = append(params, agent.Parameter{Name: pair.Key, Type: shapeType(s, pair.Value)})
		}
	}
	if regional {
		if s.Properties == nil {
			s.Properties = jsonschema.NewProperties()
		}
		s.Properties.Set(cloud.RegionParam, &jsonschema.Schema{
			Type:        "string",
			MinLength:   &one,
			Description: "AWS region to query instead of the configured one, e.g. us-west-2.",
		})
		params = append(params, agent.Parameter{Name: cloud.RegionParam, Type: "string"})
	}
	schema, err = json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("encode schema for %s: %w", t.Name(), err)
	}
	return schema, params, nil
}

// shapeType maps a property schema to a coarse shape name.
func shapeType(root, p *jsonschema.Schema) string {
	if p == nil {
		return "any"
	}
	if p.Ref != "" {
		name := strings.TrimPrefix(p.Ref, "#/$defs/")
		if def, ok := root.Definitions[name]; ok && def != p {
			if def.Ref == "" {
				return shapeType(root, def)
			}
		}
		return "object"
	}
	switch p.Type {
	case "":
		if p.Properties != nil && p.Properties.Len() > 0 {
			return "object"
		}
		return "any"
	case "string":
		if p.Format == "date-time" {
			return "timestamp"
		}
		if p.ContentEncoding == "base64" {
			return "blob"
		}
		return "string"
	default:
		return p.Type
	}
}
