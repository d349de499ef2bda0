// summary.go
package openapi2mcp

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteToolSummary prints a human-readable summary of the tools that will be exposed.
//
// The output lists the total number of tools, a per-tag breakdown in tag order,
// and the number of tools per HTTP method:
//
//	Total tools: 12
//	Tags:
//	  accounts: 8
//	  bills: 3
//	  untagged: 1
//	Methods:
//	  GET: 9
//	  POST: 3
func WriteToolSummary(w io.Writer, tools []ToolDefinition) {
	tagCount := map[string]int{}
	methodCount := map[string]int{}
	for _, t := range tools {
		if len(t.Tags) == 0 {
			tagCount["untagged"]++
		}
		for _, tag := range t.Tags {
			tagCount[tag]++
		}
		methodCount[strings.ToUpper(t.Method)]++
	}
	fmt.Fprintf(w, "Total tools: %d\n", len(tools))
	writeCounts(w, "Tags", tagCount)
	writeCounts(w, "Methods", methodCount)
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}
