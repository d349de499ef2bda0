package openapi2mcp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteToolSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteToolSummary(&buf, []ToolDefinition{
		{Name: "a", Method: "get", Tags: []string{"bills"}},
		{Name: "b", Method: "post", Tags: []string{"accounts", "bills"}},
		{Name: "c", Method: "get"},
	})
	assert.Equal(t, `Total tools: 3
Tags:
  accounts: 1
  bills: 2
  untagged: 1
Methods:
  GET: 2
  POST: 1
`, buf.String())
}
