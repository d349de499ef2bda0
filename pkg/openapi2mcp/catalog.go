package openapi2mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
)

// Catalog is the ordered, immutable set of tools of one document.
type Catalog struct {
	tools   []ToolDefinition
	index   map[string]int
	schemes map[string]auth.Scheme
}

// NewCatalog indexes tools by name. Names must be unique.
func NewCatalog(tools []ToolDefinition, schemes map[string]auth.Scheme) (*Catalog, error) {
	c := &Catalog{
		tools:   make([]ToolDefinition, len(tools)),
		index:   make(map[string]int, len(tools)),
		schemes: make(map[string]auth.Scheme, len(schemes)),
	}
	copy(c.tools, tools)
	for i, t := range c.tools {
		if _, dup := c.index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		c.index[t.Name] = i
	}
	for name, s := range schemes {
		c.schemes[name] = s
	}
	return c, nil
}

// BuildCatalog extracts every operation of doc into a catalog.
func BuildCatalog(doc *openapi3.T, order *DocumentOrder, logger *zap.Logger) (*Catalog, error) {
	tools := NewExtractor(logger).Extract(doc, order)
	return NewCatalog(tools, auth.SchemesFromDocument(doc))
}

// Tools returns the tools in extraction order.
func (c *Catalog) Tools() []ToolDefinition {
	out := make([]ToolDefinition, len(c.tools))
	copy(out, c.tools)
	return out
}

func (c *Catalog) Len() int { return len(c.tools) }

// Lookup finds a tool by exact name.
func (c *Catalog) Lookup(name string) (*ToolDefinition, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	def := c.tools[i]
	return &def, true
}

// Filter returns the tools carrying at least one of tags. No tags means no
// filtering.
func (c *Catalog) Filter(tags []string) []ToolDefinition {
	if len(tags) == 0 {
		return c.Tools()
	}
	var out []ToolDefinition
	for i := range c.tools {
		if c.tools[i].HasTag(tags...) {
			out = append(out, c.tools[i])
		}
	}
	return out
}

// Schemes returns the security schemes declared by the document.
func (c *Catalog) Schemes() map[string]auth.Scheme {
	out := make(map[string]auth.Scheme, len(c.schemes))
	for k, v := range c.schemes {
		out[k] = v
	}
	return out
}

// Artifact is the serialized form of a catalog.
type Artifact struct {
	Title   string                           `json:"title" yaml:"title"`
	Version string                           `json:"version" yaml:"version"`
	Schemes map[string]auth.SchemeDescriptor `json:"securitySchemes" yaml:"securitySchemes"`
	Tools   []ToolDefinition                 `json:"tools" yaml:"tools"`
}

// Artifact snapshots the catalog under the given document title and version.
func (c *Catalog) Artifact(title, version string) Artifact {
	return Artifact{
		Title:   title,
		Version: version,
		Schemes: auth.DescribeAll(c.schemes),
		Tools:   c.Tools(),
	}
}

// WriteJSON writes the artifact as indented JSON.
func (a Artifact) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(a)
}

// WriteYAML writes the artifact as YAML.
func (a Artifact) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return err
	}
	return enc.Close()
}

// Catalog rebuilds a catalog from the artifact.
func (a Artifact) Catalog() (*Catalog, error) {
	return NewCatalog(a.Tools, auth.SchemesFromDescriptors(a.Schemes))
}

// LoadArtifact reads an artifact written by WriteJSON or WriteYAML.
func LoadArtifact(data []byte) (Artifact, error) {
	var a Artifact
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return Artifact{}, fmt.Errorf("failed to parse catalog artifact: %w", err)
		}
		return a, nil
	}
	if err := yaml.Unmarshal(trimmed, &a); err != nil {
		return Artifact{}, fmt.Errorf("failed to parse catalog artifact: %w", err)
	}
	return a, nil
}
