package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/wilhg/cloudask/pkg/errmodel"
)

// RegionParam is the reserved parameter that runs one call against another
// region than the shared config's.
const RegionParam = "region"

// MaxStreamBytes caps how much of a streaming output body is kept.
const MaxStreamBytes = 64 * 1024

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	closerType  = reflect.TypeOf((*io.Closer)(nil)).Elem()
)

// Operation is one callable API operation of a service client.
type Operation struct {
	// Name is the SDK method name, e.g. "ListBuckets".
	Name string
	// Input is the request struct type, e.g. s3.ListBucketsInput.
	Input reflect.Type
	// RegionOverride reports whether Invoke accepts RegionParam. It is false
	// when the input struct has its own member of that name.
	RegionOverride bool

	fn      reflect.Value
	optType reflect.Type
}

// Operations returns the API operations of client in method-name order.
// Methods that do not have the SDK operation signature are ignored.
func Operations(client any) []Operation {
	if client == nil {
		return nil
	}
	v := reflect.ValueOf(client)
	t := v.Type()
	var out []Operation
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		in, ok := operationInput(m)
		if !ok {
			continue
		}
		optType := m.Type.In(3).Elem()
		out = append(out, Operation{
			Name:           m.Name,
			Input:          in,
			RegionOverride: hasRegionOption(optType) && !hasField(in, RegionParam),
			fn:             v.Method(i),
			optType:        optType,
		})
	}
	return out
}

// operationInput reports whether m has the shape
// func(recv, context.Context, *<Name>Input, ...func(*Options)) (*<Name>Output, error).
func operationInput(m reflect.Method) (reflect.Type, bool) {
	mt := m.Type
	if mt.NumIn() != 4 || !mt.IsVariadic() || mt.NumOut() != 2 {
		return nil, false
	}
	if mt.In(1) != contextType || mt.Out(1) != errorType {
		return nil, false
	}
	opt := mt.In(3).Elem()
	if opt.Kind() != reflect.Func || opt.NumIn() != 1 || opt.NumOut() != 0 || opt.In(0).Kind() != reflect.Pointer {
		return nil, false
	}
	in, out := mt.In(2), mt.Out(0)
	if in.Kind() != reflect.Pointer || in.Elem().Kind() != reflect.Struct || in.Elem().Name() != m.Name+"Input" {
		return nil, false
	}
	if out.Kind() != reflect.Pointer || out.Elem().Kind() != reflect.Struct || out.Elem().Name() != m.Name+"Output" {
		return nil, false
	}
	return in.Elem(), true
}

func hasRegionOption(optFn reflect.Type) bool {
	o := optFn.In(0).Elem()
	if o.Kind() != reflect.Struct {
		return false
	}
	f, ok := o.FieldByName("Region")
	return ok && f.Type.Kind() == reflect.String
}

func hasField(t reflect.Type, name string) bool {
	for i := 0; i < t.NumField(); i++ {
		if strings.EqualFold(t.Field(i).Name, name) {
			return true
		}
	}
	return false
}

// Invoke decodes params into a fresh input struct and calls the operation.
// The SDK output is returned as plain JSON-compatible data.
func (op Operation) Invoke(ctx context.Context, params map[string]any) (out any, err error) {
	var callArgs []reflect.Value
	if op.RegionOverride {
		if raw, ok := params[RegionParam]; ok {
			region, isString := raw.(string)
			if !isString || strings.TrimSpace(region) == "" {
				return nil, errmodel.Validation(errmodel.CodeInvalidParameters, "region must be a non-empty string", map[string]any{"operation": op.Name})
			}
			params = withoutKey(params, RegionParam)
			callArgs = append(callArgs, op.regionOption(strings.TrimSpace(region)))
		}
	}
	in := reflect.New(op.Input)
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, errmodel.Validation(errmodel.CodeInvalidParameters, "parameters are not serializable: "+err.Error(), nil)
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(in.Interface()); err != nil {
			return nil, errmodel.Validation(errmodel.CodeInvalidParameters, "parameters do not match "+op.Input.Name()+": "+err.Error(), map[string]any{"operation": op.Name})
		}
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s panicked: %v", op.Name, r)
		}
	}()
	res := op.fn.Call(append([]reflect.Value{reflect.ValueOf(ctx), in}, callArgs...))
	if e, _ := res[1].Interface().(error); e != nil {
		return nil, e
	}
	streams := drainStreams(res[0])
	out, err = Normalize(res[0].Interface())
	if err != nil {
		return nil, err
	}
	if m, ok := out.(map[string]any); ok {
		for k, v := range streams {
			m[k] = v
		}
	}
	return out, nil
}

// regionOption builds a func(*Options) that sets Options.Region.
func (op Operation) regionOption(region string) reflect.Value {
	return reflect.MakeFunc(op.optType, func(args []reflect.Value) []reflect.Value {
		args[0].Elem().FieldByName("Region").SetString(region)
		return nil
	})
}

func withoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// drainStreams reads and closes every io.Closer field of the output struct
// behind ptr, clears the field, and returns the read content by field name.
// Text is kept as a string, binary content as base64, both capped at
// MaxStreamBytes.
func drainStreams(ptr reflect.Value) map[string]any {
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() || ptr.Elem().Kind() != reflect.Struct {
		return nil
	}
	v := ptr.Elem()
	var out map[string]any
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !v.Type().Field(i).IsExported() || f.Kind() != reflect.Interface || f.IsNil() || !f.Type().Implements(closerType) {
			continue
		}
		c := f.Interface().(io.Closer)
		var data []byte
		if r, ok := c.(io.Reader); ok {
			data, _ = io.ReadAll(io.LimitReader(r, MaxStreamBytes))
		}
		_ = c.Close()
		f.Set(reflect.Zero(f.Type()))
		if out == nil {
			out = map[string]any{}
		}
		if utf8.Valid(data) {
			out[v.Type().Field(i).Name] = string(data)
		} else {
			out[v.Type().Field(i).Name] = base64.StdEncoding.EncodeToString(data)
		}
	}
	return out
}

// Normalize converts an SDK output struct into maps, slices and scalars with
// the SDK's ResultMetadata removed.
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	if m, ok := out.(map[string]any); ok {
		delete(m, "ResultMetadata")
	}
	return out, nil
}
