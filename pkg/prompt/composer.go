// Package prompt renders the prompts sent to the model: the tool selection
// prompt built from retrieved candidates and the summary prompt built from a
// tool's output.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/wilhg/cloudask/pkg/agent"
)

// The query is inserted verbatim. Quotes or instructions inside it reach the
// model unchanged.
var selectionTemplate = template.Must(template.New("selection").Funcs(template.FuncMap{
	"params": formatParameters,
}).Parse(`You are an intelligent assistant for AWS cloud management. Your task is to interpret the user's query and select the most appropriate tool from the following list:

{{range $i, $t := .Candidates}}{{if $i}}
{{end}}- Tool: {{$t.Name}}
  Description: {{$t.Description}}
  Parameters: {{params $t.Parameters}}{{end}}

User Query: "{{.Query}}"

Return a JSON object with:
- tool: The name of the tool to use.
- parameters: The parameters required for the selected tool.
`))

// ComposeSelection renders the tool selection prompt for query.
func ComposeSelection(query string, candidates []agent.ToolDescriptor) string {
	var b strings.Builder
	err := selectionTemplate.Execute(&b, struct {
		Query      string
		Candidates []agent.ToolDescriptor
	}{query, candidates})
	if err != nil {
		// the template only reads strings and slices
		panic(err)
	}
	return b.String()
}

func formatParameters(ps []agent.Parameter) string {
	if len(ps) == 0 {
		return "none"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.Name + " (" + p.Type + ")"
	}
	return strings.Join(parts, ", ")
}

// ComposeSummary renders the summary prompt for a tool's JSON output. Data
// longer than limit bytes is cut at a rune boundary and marked; limit <= 0
// keeps everything.
func ComposeSummary(tool string, data []byte, limit int) string {
	return fmt.Sprintf("Summarize the following %s data: %s", tool, Truncate(string(data), limit))
}

// Truncate cuts s to at most limit bytes plus a marker naming what was dropped.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf(" ... [truncated %d bytes]", len(s)-cut)
}
