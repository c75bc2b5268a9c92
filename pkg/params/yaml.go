package params

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromNode converts a YAML node into a Value. Floats and other non-core
// scalar tags are kept as their literal text so that values such as
// "22.04" survive unchanged.
func FromNode(n *yaml.Node) (Value, error) {
	if n == nil {
		return Unset(), nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Unset(), nil
		}
		return FromNode(n.Content[0])

	case yaml.AliasNode:
		return FromNode(n.Alias)

	case yaml.ScalarNode:
		return scalarFromNode(n)

	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromNode(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindArray, arr: items}, nil

	case yaml.MappingNode:
		m := make(map[string]Value, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, val := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("line %d: map keys must be scalars", k.Line)
			}
			if _, dup := m[k.Value]; dup {
				return Value{}, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
			}
			v, err := FromNode(val)
			if err != nil {
				return Value{}, err
			}
			m[k.Value] = v
		}
		return Value{kind: KindMap, m: m}, nil
	}

	return Value{}, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
}

// BagFromNode converts a YAML mapping (or null) into a Bag.
func BagFromNode(n *yaml.Node) (Bag, error) {
	v, err := FromNode(n)
	if err != nil {
		return nil, err
	}
	if !v.IsSet() {
		return Bag{}, nil
	}
	b, ok := v.AsBag()
	if !ok {
		line := 0
		if n != nil {
			line = n.Line
		}
		return nil, fmt.Errorf("line %d: expected a map of parameters, got %s", line, v.Kind())
	}
	return b, nil
}

func scalarFromNode(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Unset(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Bool(b), nil
	case "!!int":
		literal := strings.ReplaceAll(n.Value, "_", "")
		// Decimal first so that "0644" stays 644 rather than octal 420.
		if i, err := strconv.ParseInt(literal, 10, 64); err == nil {
			return Int(i), nil
		}
		i, err := strconv.ParseInt(literal, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("line %d: invalid integer %q", n.Line, n.Value)
		}
		v := Int(i)
		v.lit = literal
		return v, nil
	default:
		return String(n.Value), nil
	}
}
