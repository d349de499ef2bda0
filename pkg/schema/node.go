// Package schema models JSON-Schema fragments as a tagged union of node kinds
// and maps OpenAPI schemas into the normalized form used for tool input schemas.
package schema

// Kind identifies which variant of Node is populated.
type Kind int

const (
	// KindPrimitive covers scalar types and untyped schemas without structure.
	KindPrimitive Kind = iota
	// KindObject has a type of object or carries property keywords.
	KindObject
	// KindArray has a type of array or carries items.
	KindArray
	// KindComposite is an untyped allOf/anyOf/oneOf/not combination.
	KindComposite
	// KindRef is an unresolved $ref.
	KindRef
	// KindBool is the boolean schema true or false.
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindComposite:
		return "composite"
	case KindRef:
		return "ref"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Keyword is a leaf keyword the mapper carries through untouched unless it is
// on the strip list.
type Keyword struct {
	Name  string
	Value any
}

// Node is one schema fragment. Bool is only meaningful for KindBool and Ref
// only for KindRef; every other kind uses the remaining fields.
type Node struct {
	Kind Kind
	Bool bool
	Ref  string

	Types       []string
	TypeList    bool
	Format      string
	Description string

	Properties           *Map
	PatternProperties    *Map
	Definitions          *Map
	Required             []string
	Items                []*Node
	ItemsTuple           bool
	AllOf                []*Node
	AnyOf                []*Node
	OneOf                []*Node
	Not                  *Node
	AdditionalProperties *Node

	Keywords []Keyword
}

// NewBool returns the boolean schema.
func NewBool(b bool) *Node {
	return &Node{Kind: KindBool, Bool: b}
}

// NewRef returns an unresolved reference node.
func NewRef(ref string) *Node {
	return &Node{Kind: KindRef, Ref: ref}
}

// NewObject returns an empty object schema with an initialized property map.
func NewObject() *Node {
	return &Node{Kind: KindObject, Types: []string{"object"}, Properties: NewMap()}
}

// NewPrimitive returns a schema of a single scalar type.
func NewPrimitive(typ, description string) *Node {
	return &Node{Kind: KindPrimitive, Types: []string{typ}, Description: description}
}

// HasType reports whether typ is one of the node's declared types.
func (n *Node) HasType(typ string) bool {
	for _, t := range n.Types {
		if t == typ {
			return true
		}
	}
	return false
}

// Keyword returns the value of a leaf keyword.
func (n *Node) Keyword(name string) (any, bool) {
	for _, kw := range n.Keywords {
		if kw.Name == name {
			return kw.Value, true
		}
	}
	return nil, false
}

// IsRequired reports whether name is listed in required.
func (n *Node) IsRequired(name string) bool {
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}

// RemoveProperty drops a property and any required entry naming it.
func (n *Node) RemoveProperty(name string) {
	n.Properties.Delete(name)
	if len(n.Required) == 0 {
		return
	}
	kept := n.Required[:0:0]
	for _, r := range n.Required {
		if r != name {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	n.Required = kept
}

func classify(n *Node) Kind {
	switch {
	case n.Ref != "":
		return KindRef
	case n.HasType("object"), n.Properties != nil, n.PatternProperties != nil, n.AdditionalProperties != nil:
		return KindObject
	case n.HasType("array"), len(n.Items) > 0:
		return KindArray
	case len(n.Types) == 0 && (len(n.AllOf) > 0 || len(n.AnyOf) > 0 || len(n.OneOf) > 0 || n.Not != nil):
		return KindComposite
	default:
		return KindPrimitive
	}
}

// Map is an insertion-ordered map of schema nodes.
type Map struct {
	keys   []string
	values map[string]*Node
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]*Node)}
}

// Set stores a node. Re-setting an existing key keeps its position.
func (m *Map) Set(key string, n *Node) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = n
}

// Get returns the node stored under key.
func (m *Map) Get(key string) (*Node, bool) {
	if m == nil {
		return nil, false
	}
	n, ok := m.values[key]
	return n, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}
