package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Group is a labelled list of ingredient lines.
type Group struct {
	Label string
	Lines []IngredientLine
}

// Groups is an ordered mapping from group label to ingredient lines. It is
// encoded as a JSON/YAML object whose key order is preserved on decode.
type Groups []Group

// Labels returns the group labels in order.
func (g Groups) Labels() []string {
	labels := make([]string, 0, len(g))
	for _, group := range g {
		labels = append(labels, group.Label)
	}
	return labels
}

// Lookup returns the lines of the group with the given label.
func (g Groups) Lookup(label string) ([]IngredientLine, bool) {
	for _, group := range g {
		if group.Label == label {
			return group.Lines, true
		}
	}
	return nil, false
}

// set replaces the lines of an existing label in place, or appends a new group.
// A repeated key keeps its first position, like a JavaScript object would.
func (g Groups) set(label string, lines []IngredientLine) Groups {
	for i := range g {
		if g[i].Label == label {
			g[i].Lines = lines
			return g
		}
	}
	return append(g, Group{Label: label, Lines: lines})
}

// MarshalJSON encodes the groups as an object, keys in group order.
func (g Groups) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, group := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(group.Label)
		if err != nil {
			return nil, err
		}
		lines := group.Lines
		if lines == nil {
			lines = []IngredientLine{}
		}
		value, err := json.Marshal(lines)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of label -> lines, keeping key order.
func (g *Groups) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read ingredient groups: %w", err)
	}
	if tok == nil {
		*g = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("ingredient groups must be an object, got %v", tok)
	}

	groups := Groups{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read ingredient group label: %w", err)
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("ingredient group label must be a string, got %v", keyTok)
		}
		var lines []IngredientLine
		if err := dec.Decode(&lines); err != nil {
			return fmt.Errorf("failed to decode ingredient group %q: %w", label, err)
		}
		groups = groups.set(label, lines)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read ingredient groups: %w", err)
	}
	*g = groups
	return nil
}

// UnmarshalYAML decodes a mapping node of label -> lines, keeping key order.
func (g *Groups) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*g = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: ingredient groups must be a mapping", value.Line)
	}

	groups := Groups{}
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valueNode := value.Content[i], value.Content[i+1]
		var lines []IngredientLine
		if err := valueNode.Decode(&lines); err != nil {
			return fmt.Errorf("failed to decode ingredient group %q: %w", keyNode.Value, err)
		}
		groups = groups.set(keyNode.Value, lines)
	}
	*g = groups
	return nil
}
