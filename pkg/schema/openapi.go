package schema

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// FromOpenAPI converts a kin-openapi schema into a Node. A reference whose
// target was resolved by the loader is inlined; one without a resolved value,
// or one that would recurse into itself, stays a KindRef node.
// Properties are emitted in lexical order.
func FromOpenAPI(ref *openapi3.SchemaRef) (*Node, error) {
	return FromOpenAPIOrdered(ref, nil)
}

// FromOpenAPIOrdered is FromOpenAPI with properties emitted in the source
// order recorded in order.
func FromOpenAPIOrdered(ref *openapi3.SchemaRef, order PropertyOrder) (*Node, error) {
	c := converter{visiting: make(map[*openapi3.Schema]bool), order: order}
	return c.convert(ref)
}

// PropertyOrder maps a set of property names to the order they were declared
// in. kin-openapi keeps properties in a map, so the order is recovered from
// the raw document and matched by name set. The first declaration of a set
// wins.
type PropertyOrder map[string][]string

func propertySetKey(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// Record adds one declared property sequence.
func (p PropertyOrder) Record(names []string) {
	if len(names) == 0 {
		return
	}
	key := propertySetKey(names)
	if _, ok := p[key]; !ok {
		p[key] = append([]string(nil), names...)
	}
}

// Sort returns names in recorded order, or in lexical order when the set was
// never recorded.
func (p PropertyOrder) Sort(names []string) []string {
	if recorded, ok := p[propertySetKey(names)]; ok {
		return append([]string(nil), recorded...)
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return sorted
}

type converter struct {
	visiting map[*openapi3.Schema]bool
	order    PropertyOrder
}

func (c converter) convert(ref *openapi3.SchemaRef) (*Node, error) {
	if ref == nil {
		return nil, nil
	}
	if ref.Value == nil {
		return NewRef(ref.Ref), nil
	}
	s := ref.Value
	if c.visiting[s] {
		return NewRef(ref.Ref), nil
	}
	c.visiting[s] = true
	defer delete(c.visiting, s)

	// Leaf keywords come from kin's own encoding of a copy stripped of every
	// recursive slot; the recursive slots are walked here so that resolved
	// references are inlined instead of re-emitted as $ref.
	leaf := *s
	leaf.Properties = nil
	leaf.Items = nil
	leaf.AllOf = nil
	leaf.AnyOf = nil
	leaf.OneOf = nil
	leaf.Not = nil
	leaf.AdditionalProperties = openapi3.AdditionalProperties{}
	data, err := json.Marshal(&leaf)
	if err != nil {
		return nil, err
	}
	n, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if s.Properties != nil {
		n.Properties = NewMap()
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		for _, name := range c.order.Sort(names) {
			child, err := c.convert(s.Properties[name])
			if err != nil {
				return nil, err
			}
			if child != nil {
				n.Properties.Set(name, child)
			}
		}
	}
	if s.Items != nil {
		item, err := c.convert(s.Items)
		if err != nil {
			return nil, err
		}
		if item != nil {
			n.Items = []*Node{item}
		}
	}
	if n.AllOf, err = c.convertAll(s.AllOf); err != nil {
		return nil, err
	}
	if n.AnyOf, err = c.convertAll(s.AnyOf); err != nil {
		return nil, err
	}
	if n.OneOf, err = c.convertAll(s.OneOf); err != nil {
		return nil, err
	}
	if n.Not, err = c.convert(s.Not); err != nil {
		return nil, err
	}
	switch {
	case s.AdditionalProperties.Schema != nil:
		if n.AdditionalProperties, err = c.convert(s.AdditionalProperties.Schema); err != nil {
			return nil, err
		}
	case s.AdditionalProperties.Has != nil:
		n.AdditionalProperties = NewBool(*s.AdditionalProperties.Has)
	}

	n.Kind = classify(n)
	return n, nil
}

func (c converter) convertAll(refs openapi3.SchemaRefs) ([]*Node, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]*Node, 0, len(refs))
	for _, r := range refs {
		n, err := c.convert(r)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}
