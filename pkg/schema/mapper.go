package schema

import (
	"go.uber.org/zap"
)

// strippedKeywords are OpenAPI presentation keywords with no meaning for
// argument validation.
var strippedKeywords = map[string]bool{
	"example":       true,
	"examples":      true,
	"xml":           true,
	"externalDocs":  true,
	"deprecated":    true,
	"readOnly":      true,
	"writeOnly":     true,
	"discriminator": true,
}

// allowedFormats lists the formats kept per single declared type. Types not
// listed here keep whatever format they carry, except boolean.
var allowedFormats = map[string]map[string]bool{
	"string":  {"date-time": true, "enum": true},
	"number":  {"float": true, "double": true},
	"integer": {"int32": true, "int64": true},
	"boolean": {},
}

// Mapper normalizes OpenAPI schema fragments into tool input schemas.
type Mapper struct {
	logger *zap.Logger
}

// NewMapper returns a Mapper that reports diagnostics to logger. A nil
// logger discards them.
func NewMapper(logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{logger: logger.With(zap.String("component", "schema"))}
}

// Map returns a normalized copy of n. The input is never modified.
func (m *Mapper) Map(n *Node) *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindBool:
		return NewBool(n.Bool)
	case KindRef:
		m.logger.Warn("unresolved schema reference, using generic object", zap.String("ref", n.Ref))
		return &Node{
			Kind:        KindObject,
			Types:       []string{"object"},
			Description: "Reference to " + n.Ref,
		}
	}

	out := &Node{
		Kind:        n.Kind,
		Types:       append([]string(nil), n.Types...),
		TypeList:    n.TypeList,
		Format:      mapFormat(n),
		Description: n.Description,
		ItemsTuple:  n.ItemsTuple,
	}
	for _, kw := range n.Keywords {
		if !strippedKeywords[kw.Name] {
			out.Keywords = append(out.Keywords, kw)
		}
	}
	mapNullable(out)

	out.Properties = m.mapAll(n.Properties)
	out.PatternProperties = m.mapAll(n.PatternProperties)
	out.Definitions = m.mapAll(n.Definitions)
	out.Required = m.mapRequired(n)
	out.Items = m.mapList(n.Items)
	out.AllOf = m.mapList(n.AllOf)
	out.AnyOf = m.mapList(n.AnyOf)
	out.OneOf = m.mapList(n.OneOf)
	out.Not = m.Map(n.Not)
	if n.AdditionalProperties != nil {
		out.AdditionalProperties = m.Map(n.AdditionalProperties)
	}
	return out
}

// mapNullable turns the OpenAPI 3.0 nullable flag into a "null" member of
// the type list, and of the enum when there is one. Untyped schemas keep the
// flag.
func mapNullable(n *Node) {
	v, ok := n.Keyword("nullable")
	if !ok || len(n.Types) == 0 {
		return
	}
	nullable, _ := v.(bool)
	if nullable && !n.HasType("null") {
		n.Types = append(n.Types, "null")
		n.TypeList = true
	}

	kept := n.Keywords[:0:0]
	for _, kw := range n.Keywords {
		switch kw.Name {
		case "nullable":
			continue
		case "enum":
			if values, ok := kw.Value.([]any); ok && nullable && !containsNil(values) {
				kw.Value = append(append([]any(nil), values...), nil)
			}
		}
		kept = append(kept, kw)
	}
	n.Keywords = kept
}

func containsNil(values []any) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}

func mapFormat(n *Node) string {
	if n.Format == "" || len(n.Types) != 1 || n.TypeList {
		return n.Format
	}
	allowed, ok := allowedFormats[n.Types[0]]
	if !ok || allowed[n.Format] {
		return n.Format
	}
	return ""
}

func (m *Mapper) mapRequired(n *Node) []string {
	if len(n.Required) == 0 {
		return nil
	}
	var kept, missing []string
	for _, name := range n.Required {
		if n.Properties.Has(name) {
			kept = append(kept, name)
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		m.logger.Warn("schema required fields missing from properties", zap.Strings("fields", missing))
	}
	return kept
}

func (m *Mapper) mapAll(src *Map) *Map {
	if src == nil {
		return nil
	}
	out := NewMap()
	for _, key := range src.keys {
		out.Set(key, m.Map(src.values[key]))
	}
	return out
}

func (m *Mapper) mapList(src []*Node) []*Node {
	if len(src) == 0 {
		return nil
	}
	out := make([]*Node, len(src))
	for i, n := range src {
		out[i] = m.Map(n)
	}
	return out
}
