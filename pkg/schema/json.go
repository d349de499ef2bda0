package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON writes the node with a stable key order: type, format,
// description, leaf keywords, then structural keywords.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	switch n.Kind {
	case KindBool:
		return json.Marshal(n.Bool)
	case KindRef:
		w := &objectWriter{}
		w.field("$ref", n.Ref)
		return w.bytes()
	}

	w := &objectWriter{}
	if len(n.Types) == 1 && !n.TypeList {
		w.field("type", n.Types[0])
	} else if len(n.Types) > 0 {
		w.field("type", n.Types)
	}
	if n.Format != "" {
		w.field("format", n.Format)
	}
	if n.Description != "" {
		w.field("description", n.Description)
	}
	for _, kw := range n.Keywords {
		w.field(kw.Name, kw.Value)
	}
	if n.Properties != nil {
		w.field("properties", n.Properties)
	}
	if n.PatternProperties != nil {
		w.field("patternProperties", n.PatternProperties)
	}
	if n.AdditionalProperties != nil {
		w.field("additionalProperties", n.AdditionalProperties)
	}
	if len(n.Required) > 0 {
		w.field("required", n.Required)
	}
	if len(n.Items) > 0 {
		if n.ItemsTuple {
			w.field("items", n.Items)
		} else {
			w.field("items", n.Items[0])
		}
	}
	if len(n.AllOf) > 0 {
		w.field("allOf", n.AllOf)
	}
	if len(n.AnyOf) > 0 {
		w.field("anyOf", n.AnyOf)
	}
	if len(n.OneOf) > 0 {
		w.field("oneOf", n.OneOf)
	}
	if n.Not != nil {
		w.field("not", n.Not)
	}
	if n.Definitions != nil {
		w.field("definitions", n.Definitions)
	}
	return w.bytes()
}

// UnmarshalJSON reads a boolean or object schema, keeping key order for
// properties and leaf keywords.
func (n *Node) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null":
		return nil
	case "true", "false":
		*n = Node{Kind: KindBool, Bool: string(data) == "true"}
		return nil
	}

	keys, raws, err := decodeObject(data)
	if err != nil {
		return err
	}

	var out Node
	for i, key := range keys {
		raw := json.RawMessage(bytes.TrimSpace(raws[i]))
		if isNull(raw) {
			continue
		}
		switch key {
		case "$ref":
			err = json.Unmarshal(raw, &out.Ref)
		case "type":
			err = out.decodeType(raw)
		case "format":
			err = json.Unmarshal(raw, &out.Format)
		case "description":
			err = json.Unmarshal(raw, &out.Description)
		case "required":
			err = json.Unmarshal(raw, &out.Required)
		case "properties":
			out.Properties, err = decodeMap(raw)
		case "patternProperties":
			out.PatternProperties, err = decodeMap(raw)
		case "definitions":
			out.Definitions, err = decodeMap(raw)
		case "items":
			if raw[0] == '[' {
				out.ItemsTuple = true
				err = json.Unmarshal(raw, &out.Items)
			} else {
				item := &Node{}
				err = item.UnmarshalJSON(raw)
				out.Items = []*Node{item}
			}
		case "allOf":
			err = json.Unmarshal(raw, &out.AllOf)
		case "anyOf":
			err = json.Unmarshal(raw, &out.AnyOf)
		case "oneOf":
			err = json.Unmarshal(raw, &out.OneOf)
		case "not":
			out.Not = &Node{}
			err = out.Not.UnmarshalJSON(raw)
		case "additionalProperties":
			out.AdditionalProperties = &Node{}
			err = out.AdditionalProperties.UnmarshalJSON(raw)
		default:
			var v any
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			err = dec.Decode(&v)
			out.Keywords = append(out.Keywords, Keyword{Name: key, Value: v})
		}
		if err != nil {
			return fmt.Errorf("schema keyword %q: %w", key, err)
		}
	}

	if out.Ref != "" {
		*n = Node{Kind: KindRef, Ref: out.Ref}
		return nil
	}
	out.Kind = classify(&out)
	*n = out
	return nil
}

// Parse decodes a schema from JSON.
func Parse(data []byte) (*Node, error) {
	n := &Node{}
	if err := n.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return n, nil
}

// FromRaw converts an already decoded JSON value, such as a map[string]any
// or a bool, into a Node. Object keys come out in lexical order since Go maps
// carry none.
func FromRaw(v any) (*Node, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (n *Node) decodeType(raw json.RawMessage) error {
	if raw[0] == '[' {
		n.TypeList = true
		return json.Unmarshal(raw, &n.Types)
	}
	var t string
	if err := json.Unmarshal(raw, &t); err != nil {
		return err
	}
	n.Types = []string{t}
	return nil
}

// MarshalJSON writes entries in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	w := &objectWriter{}
	for _, k := range m.keys {
		w.field(k, m.values[k])
	}
	return w.bytes()
}

// UnmarshalJSON reads an object of schemas, keeping key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	decoded, err := decodeMap(data)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

func decodeMap(data []byte) (*Map, error) {
	keys, raws, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	m := NewMap()
	for i, key := range keys {
		child := &Node{}
		if err := child.UnmarshalJSON(raws[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		m.Set(key, child)
	}
	return m, nil
}

func decodeObject(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("schema must be an object or boolean, got %s", bytes.TrimSpace(data))
	}

	var keys []string
	var raws []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		raws = append(raws, raw)
	}
	return keys, raws, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

type objectWriter struct {
	buf bytes.Buffer
	n   int
	err error
}

func (w *objectWriter) field(key string, v any) {
	if w.err != nil {
		return
	}
	k, err := json.Marshal(key)
	if err != nil {
		w.err = err
		return
	}
	val, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	if w.n == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(val)
	w.n++
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.n == 0 {
		return []byte("{}"), nil
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}
