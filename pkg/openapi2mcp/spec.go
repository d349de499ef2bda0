package openapi2mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/schema"
)

// DocumentOrder records the key order of the source document for the parts
// kin-openapi stores in maps: the paths, each request body's content types
// and schema properties. A nil DocumentOrder falls back to lexical order.
type DocumentOrder struct {
	paths        []string
	contentTypes map[string][]string
	properties   schema.PropertyOrder
}

// OrderFromBytes recovers key order from raw YAML or JSON document bytes.
func OrderFromBytes(data []byte) (*DocumentOrder, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to read document order: %w", err)
	}
	order := &DocumentOrder{
		contentTypes: make(map[string][]string),
		properties:   make(schema.PropertyOrder),
	}
	if len(root.Content) == 0 {
		return order, nil
	}
	recordProperties(root.Content[0], order.properties, make(map[*yaml.Node]bool))

	paths := mappingValue(root.Content[0], "paths")
	if paths == nil || paths.Kind != yaml.MappingNode {
		return order, nil
	}
	for i := 0; i+1 < len(paths.Content); i += 2 {
		path := paths.Content[i].Value
		order.paths = append(order.paths, path)

		item := paths.Content[i+1]
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			method := strings.ToLower(item.Content[j].Value)
			content := mappingValue(mappingValue(item.Content[j+1], "requestBody"), "content")
			if content == nil || content.Kind != yaml.MappingNode {
				continue
			}
			key := operationKey(path, method)
			for k := 0; k+1 < len(content.Content); k += 2 {
				order.contentTypes[key] = append(order.contentTypes[key], content.Content[k].Value)
			}
		}
	}
	return order, nil
}

// recordProperties walks the whole tree, components and inline schemas alike,
// and records the key order of every properties mapping.
func recordProperties(n *yaml.Node, order schema.PropertyOrder, seen map[*yaml.Node]bool) {
	if n == nil || seen[n] {
		return
	}
	seen[n] = true
	switch n.Kind {
	case yaml.AliasNode:
		recordProperties(n.Alias, order, seen)
	case yaml.SequenceNode:
		for _, c := range n.Content {
			recordProperties(c, order, seen)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			value := n.Content[i+1]
			if n.Content[i].Value == "properties" && value.Kind == yaml.MappingNode {
				names := make([]string, 0, len(value.Content)/2)
				for j := 0; j+1 < len(value.Content); j += 2 {
					names = append(names, value.Content[j].Value)
				}
				order.Record(names)
			}
			recordProperties(value, order, seen)
		}
	}
}

// Properties returns the recorded schema property order.
func (o *DocumentOrder) Properties() schema.PropertyOrder {
	if o == nil {
		return nil
	}
	return o.properties
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func operationKey(path, method string) string {
	return method + " " + path
}

// Paths returns the document's paths in source order. Paths unknown to the
// recorded order are appended in lexical order.
func (o *DocumentOrder) Paths(paths *openapi3.Paths) []string {
	if paths == nil {
		return nil
	}
	present := paths.Map()
	out := make([]string, 0, len(present))
	seen := make(map[string]bool, len(present))
	if o != nil {
		for _, p := range o.paths {
			if _, ok := present[p]; ok && !seen[p] {
				out = append(out, p)
				seen[p] = true
			}
		}
	}
	var rest []string
	for p := range present {
		if !seen[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// ContentTypes returns the request body content types of one operation in
// source order, with the same fallback as Paths.
func (o *DocumentOrder) ContentTypes(path, method string, content openapi3.Content) []string {
	out := make([]string, 0, len(content))
	seen := make(map[string]bool, len(content))
	if o != nil {
		for _, ct := range o.contentTypes[operationKey(path, strings.ToLower(method))] {
			if _, ok := content[ct]; ok && !seen[ct] {
				out = append(out, ct)
				seen[ct] = true
			}
		}
	}
	var rest []string
	for ct := range content {
		if !seen[ct] {
			rest = append(rest, ct)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
