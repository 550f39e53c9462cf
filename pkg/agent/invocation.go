package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/wilhg/cloudask/pkg/errmodel"
)

// Invocation is a tool call requested by the model.
type Invocation struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// ParseInvocation extracts an Invocation from a model completion. The completion
// may be bare JSON or JSON surrounded by prose or a fenced code block.
func ParseInvocation(completion string) (Invocation, error) {
	body := extractObject(completion)
	if body == "" {
		return Invocation{}, errmodel.Unparseable("completion contains no JSON object", completion, nil)
	}
	var raw struct {
		Tool       *string         `json:"tool"`
		Parameters json.RawMessage `json:"parameters"`
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Invocation{}, errmodel.Unparseable("completion is not valid JSON", completion, err)
	}
	if raw.Tool == nil || strings.TrimSpace(*raw.Tool) == "" {
		return Invocation{}, errmodel.Unparseable("completion is missing the tool field", completion, nil)
	}
	inv := Invocation{Tool: strings.TrimSpace(*raw.Tool), Parameters: map[string]any{}}
	p := bytes.TrimSpace(raw.Parameters)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return inv, nil
	}
	if p[0] != '{' {
		return Invocation{}, errmodel.Unparseable("parameters must be a JSON object", completion, nil)
	}
	pd := json.NewDecoder(bytes.NewReader(p))
	pd.UseNumber()
	if err := pd.Decode(&inv.Parameters); err != nil {
		return Invocation{}, errmodel.Unparseable("parameters are not valid JSON", completion, err)
	}
	return inv, nil
}

// extractObject returns the outermost {...} span of s, or "".
func extractObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
