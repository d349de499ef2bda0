package openapi2mcp

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/schema"
)

// TraceIDParameter is reserved for the transport and never exposed as a tool
// argument.
const TraceIDParameter = "X-Trace-Id"

// methodOrder is the order in which operations of one path are visited.
var methodOrder = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

func pathOperations(item *openapi3.PathItem) []*openapi3.Operation {
	return []*openapi3.Operation{item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace}
}

// Extractor derives tool definitions from an OpenAPI document.
type Extractor struct {
	mapper *schema.Mapper
	logger *zap.Logger
}

// NewExtractor returns an Extractor that reports diagnostics to logger.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		mapper: schema.NewMapper(logger),
		logger: logger.With(zap.String("component", "extractor")),
	}
}

// Extract returns one tool per operation, in path order then method order.
// Names are unique within the returned slice. An operation that cannot be
// converted is logged and skipped.
func (e *Extractor) Extract(doc *openapi3.T, order *DocumentOrder) []ToolDefinition {
	if doc == nil || doc.Paths == nil {
		return nil
	}
	seen := make(map[string]bool)
	var tools []ToolDefinition

	for _, path := range order.Paths(doc.Paths) {
		item := doc.Paths.Value(path)
		if item == nil {
			continue
		}
		for i, op := range pathOperations(item) {
			if op == nil {
				continue
			}
			method := methodOrder[i]

			base := baseToolName(op.OperationID, method, path)
			if base == "" {
				e.logger.Warn("skipping operation without usable name",
					zap.String("method", method), zap.String("path", path))
				continue
			}

			def, err := e.buildTool(doc, order, path, method, item, op)
			if err != nil {
				e.logger.Warn("skipping operation",
					zap.String("method", method), zap.String("path", path), zap.Error(err))
				continue
			}

			name := base
			for n := 1; seen[name]; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
			}
			seen[name] = true
			if name != base {
				e.logger.Debug("tool name collision resolved",
					zap.String("base", base), zap.String("name", name))
			}

			def.Name = name
			def.OperationID = base
			tools = append(tools, def)
		}
	}
	return tools
}

func (e *Extractor) buildTool(doc *openapi3.T, order *DocumentOrder, path, method string, item *openapi3.PathItem, op *openapi3.Operation) (ToolDefinition, error) {
	input := schema.NewObject()
	execParams := []ExecutionParameter{}

	for _, p := range mergeParameters(item.Parameters, op.Parameters) {
		if p.Name == "" || p.Schema == nil {
			e.logger.Debug("skipping parameter without schema",
				zap.String("path", path), zap.String("method", method), zap.String("parameter", p.Name))
			continue
		}
		if strings.EqualFold(p.Name, TraceIDParameter) {
			continue
		}
		node, err := schema.FromOpenAPIOrdered(p.Schema, order.Properties())
		if err != nil {
			return ToolDefinition{}, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		mapped := e.mapper.Map(node)
		if mapped.Kind != schema.KindBool && p.Description != "" {
			mapped.Description = p.Description
		}
		input.Properties.Set(p.Name, mapped)
		if p.Required && !input.IsRequired(p.Name) {
			input.Required = append(input.Required, p.Name)
		}
		execParams = append(execParams, ExecutionParameter{Name: p.Name, In: p.In})
	}

	contentType, err := e.addRequestBody(input, order, path, method, op.RequestBody)
	if err != nil {
		return ToolDefinition{}, err
	}

	e.lintPath(path, execParams)

	description := op.Description
	if description == "" {
		description = op.Summary
	}
	if description == "" {
		description = fmt.Sprintf("Executes %s %s", strings.ToUpper(method), path)
	}

	tags := make([]string, len(op.Tags))
	copy(tags, op.Tags)

	return ToolDefinition{
		Tags:                   tags,
		Description:            description,
		InputSchema:            input,
		Method:                 method,
		PathTemplate:           path,
		ExecutionParameters:    execParams,
		RequestBodyContentType: contentType,
		SecurityRequirements:   securityFor(doc, op),
	}, nil
}

func (e *Extractor) addRequestBody(input *schema.Node, order *DocumentOrder, path, method string, ref *openapi3.RequestBodyRef) (string, error) {
	if ref == nil || ref.Value == nil {
		return "", nil
	}
	body := ref.Value

	var contentType string
	if media := body.Content["application/json"]; media != nil && media.Schema != nil {
		node, err := schema.FromOpenAPIOrdered(media.Schema, order.Properties())
		if err != nil {
			return "", fmt.Errorf("request body: %w", err)
		}
		mapped := e.mapper.Map(node)
		if mapped.Kind != schema.KindBool {
			switch {
			case body.Description != "":
				mapped.Description = body.Description
			case mapped.Description == "":
				mapped.Description = "The JSON request body."
			}
		}
		contentType = "application/json"
		input.Properties.Set(RequestBodyProperty, mapped)
	} else if types := order.ContentTypes(path, method, body.Content); len(types) > 0 {
		contentType = types[0]
		description := body.Description
		if description == "" {
			description = fmt.Sprintf("Request body (content type: %s)", contentType)
		}
		input.Properties.Set(RequestBodyProperty, schema.NewPrimitive("string", description))
	}

	if contentType != "" && body.Required && !input.IsRequired(RequestBodyProperty) {
		input.Required = append(input.Required, RequestBodyProperty)
	}
	return contentType, nil
}

// mergeParameters overlays operation parameters on path-level ones. An
// operation parameter replaces a path-level parameter with the same name and
// location.
func mergeParameters(pathParams, opParams openapi3.Parameters) []*openapi3.Parameter {
	var out []*openapi3.Parameter
	index := make(map[string]int)
	add := func(params openapi3.Parameters) {
		for _, ref := range params {
			if ref == nil || ref.Value == nil {
				continue
			}
			key := ref.Value.In + ":" + ref.Value.Name
			if i, ok := index[key]; ok {
				out[i] = ref.Value
				continue
			}
			index[key] = len(out)
			out = append(out, ref.Value)
		}
	}
	add(pathParams)
	add(opParams)
	return out
}

// securityFor applies the inheritance rule: an operation without a security
// declaration inherits the document's global requirements; a declared list,
// even an empty one, is used as is.
func securityFor(doc *openapi3.T, op *openapi3.Operation) []auth.RequirementSet {
	reqs := doc.Security
	if op.Security != nil {
		reqs = *op.Security
	}
	out := make([]auth.RequirementSet, 0, len(reqs))
	for _, req := range reqs {
		set := make(auth.RequirementSet, len(req))
		for scheme, scopes := range req {
			set[scheme] = append([]string{}, scopes...)
		}
		out = append(out, set)
	}
	return out
}
