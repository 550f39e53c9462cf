package catalog

import (
	"strings"

	"github.com/wilhg/cloudask/pkg/agent"
)

// curated describes the operations behind the assistant's common questions.
// Everything else gets a generated sentence.
var curated = map[string]string{
	"ec2_describe_instances":       "Fetches details of EC2 instances in a specific AWS region.",
	"s3_list_buckets":              "Fetches the list of S3 buckets in the account.",
	"rds_describe_db_instances":    "Fetches details of RDS instances in a specific AWS region.",
	"ec2_describe_addresses":       "Fetches details of Elastic IPs in a specific AWS region.",
	"ec2_describe_security_groups": "Fetches details of Security Groups in a specific AWS region.",
	"elb_describe_load_balancers":  "Fetches details of Elastic Load Balancers in a specific AWS region.",
	"ec2_describe_key_pairs":       "Fetches details of Key Pairs in a specific AWS region.",
}

var readVerbs = map[string]bool{
	"describe": true,
	"list":     true,
	"get":      true,
	"head":     true,
	"lookup":   true,
	"search":   true,
	"scan":     true,
	"query":    true,
	"select":   true,
	"batch":    false, // decided by the second word
}

// describe returns the description for a tool.
func describe(tool, service, method string, overrides map[string]string) string {
	if d, ok := overrides[tool]; ok {
		return d
	}
	if d, ok := curated[tool]; ok {
		return d
	}
	words := strings.Split(strings.TrimPrefix(tool, service+"_"), "_")
	if len(words) == 0 || words[0] == "" {
		return "Calls the " + service + " " + method + " operation."
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ") + " using the " + service + " " + method + " operation."
}

// permissionsFor classifies an operation as read-only or mutating by its verb.
func permissionsFor(snakeMethod string) []agent.ToolPermission {
	words := strings.Split(snakeMethod, "_")
	read := readVerbs[words[0]]
	if words[0] == "batch" && len(words) > 1 {
		read = words[1] == "get"
	}
	if read {
		return []agent.ToolPermission{{Name: agent.PermissionRead, Description: "reads account resources"}}
	}
	return []agent.ToolPermission{{Name: agent.PermissionWrite, Description: "may modify account resources"}}
}
