package errmodel

import (
	"encoding/json"
	"errors"
	"strings"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryTool       = "tool"
	CategoryNetwork    = "network"
	CategoryModel      = "model"
	CategoryPolicy     = "policy"
	CategorySystem     = "system"
)

// Codes used across the assistant. Each code identifies one error kind.
const (
	CodeCatalogBuild       = "catalog_build_failed"
	CodeBackendUnavailable = "generation_backend_unavailable"
	CodeUnparseable        = "unparseable_response"
	CodeUnknownTool        = "unknown_tool"
	CodeInvalidParameters  = "invalid_parameters"
	CodeForbidden          = "forbidden"
	CodeToolExecution      = "tool_execution_failed"
)

// Error is the compact error payload used by every component.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the first non-nil cause passed to New, so errors.As can reach
// provider errors (e.g. smithy.APIError) through the compact wrapper.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		if ce.cause == nil {
			ce.cause = c
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	// Default to system/internal for unknown error types.
	return &Error{Category: CategorySystem, Code: "internal", Message: truncate(err.Error(), 512), cause: err}
}

// Convenience constructors.
func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

func Policy(code, message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, code, message, ctx)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// CatalogBuild reports a service whose operations could not be loaded.
func CatalogBuild(service string, cause error) *Error {
	msg := "could not load operations for " + service
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return System(CodeCatalogBuild, msg, map[string]any{"service": service}, cause)
}

// GenerationBackend reports a failed call to the model-serving endpoint.
func GenerationBackend(message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategoryModel, CodeBackendUnavailable, message+": "+cause.Error(), ctx, cause)
	}
	return New(CategoryModel, CodeBackendUnavailable, message, ctx)
}

// Unparseable reports a model completion that is not a usable tool invocation.
func Unparseable(message string, completion string, cause error) *Error {
	if cause != nil {
		message += ": " + cause.Error()
	}
	return New(CategoryModel, CodeUnparseable, message, map[string]any{"completion": completion}, cause)
}

// UnknownTool reports a tool name with no registered handler.
func UnknownTool(name string) *Error {
	return Validation(CodeUnknownTool, "tool not found: "+name, map[string]any{"tool": name})
}

// ToolExecution wraps an error raised by the resolved operation.
func ToolExecution(tool string, ctx map[string]any, cause error) *Error {
	msg := "error executing tool '" + tool + "'"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	c := map[string]any{"tool": tool}
	for k, v := range ctx {
		c[k] = v
	}
	return New(CategoryTool, CodeToolExecution, msg, c, cause)
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		default:
			// Try to stringify primitive slices to keep payload compact.
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				// Avoid giant blobs; keep a preview
				s := string(b)
				if len(s) > 256 {
					s = truncate(s, 256)
				}
				out[k] = s
			} else {
				out[k] = t
			}
		}
	}
	return out
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}

// HasCode checks if err carries a specific code.
func HasCode(err error, code string) bool {
	ce := From(err)
	return ce != nil && ce.Code == code
}
