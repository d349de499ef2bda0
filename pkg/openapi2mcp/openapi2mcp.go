// Package openapi2mcp turns an OpenAPI 3 document into MCP tool definitions and
// executes those tools against the upstream API.
//
// Generation walks every path and method of a dereferenced document and
// produces one ToolDefinition per operation:
//
//	doc, order, _ := loader.Parse(ctx, raw)
//	catalog, _ := openapi2mcp.BuildCatalog(doc, order, logger)
//
// Execution validates caller arguments against the generated input schema,
// builds the HTTP request, applies credentials and normalizes the response:
//
//	exec := openapi2mcp.NewExecutor(resolver, catalog.Schemes(), logger)
//	res, err := exec.Execute(ctx, def.Name, def, args, execCtx)
//
// Server serves a catalog to MCP clients over stdio or streamable HTTP.
package openapi2mcp

import (
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/schema"
)

// RequestBodyProperty is the synthetic input property carrying the request body.
const RequestBodyProperty = "requestBody"

// Parameter locations.
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
	InCookie = "cookie"
)

// ExecutionParameter tells the executor where an argument goes in the request.
type ExecutionParameter struct {
	Name string `json:"name" yaml:"name"`
	In   string `json:"in" yaml:"in"`
}

// ToolDefinition is one callable tool derived from a single OpenAPI operation.
// It is immutable once generated.
type ToolDefinition struct {
	Name                   string                `json:"name" yaml:"name"`
	Tags                   []string              `json:"tags" yaml:"tags"`
	Description            string                `json:"description" yaml:"description"`
	InputSchema            *schema.Node          `json:"inputSchema" yaml:"inputSchema"`
	Method                 string                `json:"method" yaml:"method"`
	PathTemplate           string                `json:"pathTemplate" yaml:"pathTemplate"`
	ExecutionParameters    []ExecutionParameter  `json:"executionParameters" yaml:"executionParameters"`
	RequestBodyContentType string                `json:"requestBodyContentType,omitempty" yaml:"requestBodyContentType,omitempty"`
	SecurityRequirements   []auth.RequirementSet `json:"securityRequirements" yaml:"securityRequirements"`
	OperationID            string                `json:"operationId" yaml:"operationId"`
}

// HasTag reports whether the tool carries any of tags.
func (d *ToolDefinition) HasTag(tags ...string) bool {
	for _, want := range tags {
		for _, have := range d.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}
