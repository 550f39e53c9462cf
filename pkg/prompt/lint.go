package prompt

import "regexp"

// Issue describes a lint finding.
type Issue struct {
	Rule    string
	Message string
	Offset  int
}

var secretPatterns = []struct {
	rule string
	re   *regexp.Regexp
	msg  string
}{
	{"security.secrets", regexp.MustCompile(`(?i)aws_secret_access_key`), "text mentions aws_secret_access_key"},
	{"security.secrets", regexp.MustCompile(`(?i)begin (rsa |ec |openssh )?private key`), "text contains a private key block"},
	{"security.access_key", regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`), "text contains an AWS access key id"},
	{"security.api_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`), "text contains an API key"},
}

// Lint reports secret-like content in text, in offset order per rule.
func Lint(text string) []Issue {
	if text == "" {
		return nil
	}
	var issues []Issue
	for _, p := range secretPatterns {
		if loc := p.re.FindStringIndex(text); loc != nil {
			issues = append(issues, Issue{Rule: p.rule, Message: p.msg, Offset: loc[0]})
		}
	}
	return issues
}
