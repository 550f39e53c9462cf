package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateFunc validates data against a JSON schema (bytes) and returns error on failure.
type ValidateFunc func(schema []byte, data any) error

// JSONSchemaValidator is a ValidateFunc using jsonschema/v6.
func JSONSchemaValidator(schema []byte, data any) error {
	sch, err := compile(schema)
	if err != nil || sch == nil {
		return err
	}
	// Marshal/unmarshal to generic for validation
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return err
	}
	return sch.Validate(v)
}

// CompileJSONSchema compiles the provided JSON schema and returns error only if the schema is invalid.
// It does not validate any instance data.
func CompileJSONSchema(schema []byte) error {
	_, err := compile(schema)
	return err
}

func compile(schema []byte) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	// anonymous in-memory schema from parsed JSON
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, err
	}
	if err := c.AddResource("mem://schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("mem://schema.json")
}

// CanonicalizeArgs rewrites argument keys to the declared parameter names when
// they match case-insensitively. Models frequently emit "bucket" for "Bucket".
// Keys with no match are kept as-is so validation can reject them.
func CanonicalizeArgs(args map[string]any, names []string) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	byFold := make(map[string]string, len(names))
	for _, n := range names {
		byFold[strings.ToLower(n)] = n
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if n, ok := byFold[strings.ToLower(k)]; ok {
			out[n] = v
			continue
		}
		out[k] = v
	}
	return out
}
