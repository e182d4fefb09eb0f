package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML implements custom YAML unmarshaling for StringList
// Handles both "a.c b.c" and [a.c, b.c]
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = strings.Fields(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("failed to decode list of strings: %w", err)
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("expected a string or a list of strings, got %v", node.Kind)
	}
}

// MarshalYAML implements custom YAML marshaling for StringList
func (l StringList) MarshalYAML() (interface{}, error) {
	if len(l) == 1 {
		return l[0], nil
	}
	return []string(l), nil
}
