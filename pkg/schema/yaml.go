package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML emits the same key order as MarshalJSON.
func (n *Node) MarshalYAML() (interface{}, error) {
	data, err := n.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	out := doc.Content[0]
	blockStyle(out)
	return out, nil
}

// UnmarshalYAML reads a schema from YAML, keeping mapping order.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	data, err := YAMLToJSON(value)
	if err != nil {
		return err
	}
	return n.UnmarshalJSON(data)
}

// YAMLToJSON converts a YAML node tree to JSON without losing mapping order.
func YAMLToJSON(value *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeYAMLAsJSON(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeYAMLAsJSON(buf *bytes.Buffer, value *yaml.Node) error {
	switch value.Kind {
	case yaml.DocumentNode:
		if len(value.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLAsJSON(buf, value.Content[0])
	case yaml.AliasNode:
		return writeYAMLAsJSON(buf, value.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(value.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(value.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLAsJSON(buf, value.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range value.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLAsJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var v any
		if err := value.Decode(&v); err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
	default:
		return fmt.Errorf("unsupported yaml node kind %d at line %d", value.Kind, value.Line)
	}
	return nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
