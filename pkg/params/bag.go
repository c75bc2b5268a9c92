package params

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrMissing is returned when a required parameter is absent or unset.
	ErrMissing = errors.New("parameter missing")

	// ErrWrongType is returned when a parameter holds an unexpected variant.
	ErrWrongType = errors.New("parameter has wrong type")
)

// Bag maps parameter names to values. It is owned by exactly one action.
type Bag map[string]Value

// Has reports whether key is present and set.
func (b Bag) Has(key string) bool {
	v, ok := b[key]
	return ok && v.IsSet()
}

// Get returns the value stored under key.
func (b Bag) Get(key string) (Value, bool) {
	v, ok := b[key]
	if !ok || !v.IsSet() {
		return Value{}, false
	}
	return v, true
}

// Keys returns the parameter names in sorted order.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func missing(key string) error {
	return fmt.Errorf("%q: %w", key, ErrMissing)
}

func wrongType(key string, want string, got Kind) error {
	return fmt.Errorf("%q: expected %s, got %s: %w", key, want, got, ErrWrongType)
}

// GetString returns the string parameter key.
func (b Bag) GetString(key string) (string, error) {
	v, ok := b.Get(key)
	if !ok {
		return "", missing(key)
	}
	s, ok := v.AsString()
	if !ok {
		return "", wrongType(key, "string", v.Kind())
	}
	return s, nil
}

// GetStringOr returns the string parameter key, or def when it is absent.
func (b Bag) GetStringOr(key, def string) (string, error) {
	if !b.Has(key) {
		return def, nil
	}
	return b.GetString(key)
}

// GetText returns a scalar parameter rendered as text. It accepts strings,
// integers and booleans, which lets documents write `permissions: 644` or
// `port: 2222` without quoting.
func (b Bag) GetText(key string) (string, error) {
	v, ok := b.Get(key)
	if !ok {
		return "", missing(key)
	}
	s, ok := v.AsText()
	if !ok {
		return "", wrongType(key, "scalar", v.Kind())
	}
	return s, nil
}

// GetTextOr is GetText with a default for absent keys.
func (b Bag) GetTextOr(key, def string) (string, error) {
	if !b.Has(key) {
		return def, nil
	}
	return b.GetText(key)
}

// GetBool returns the boolean parameter key.
func (b Bag) GetBool(key string) (bool, error) {
	v, ok := b.Get(key)
	if !ok {
		return false, missing(key)
	}
	x, ok := v.AsBool()
	if !ok {
		return false, wrongType(key, "bool", v.Kind())
	}
	return x, nil
}

// GetBoolOr returns the boolean parameter key, or def when it is absent.
func (b Bag) GetBoolOr(key string, def bool) (bool, error) {
	if !b.Has(key) {
		return def, nil
	}
	return b.GetBool(key)
}

// GetInt returns the integer parameter key.
func (b Bag) GetInt(key string) (int64, error) {
	v, ok := b.Get(key)
	if !ok {
		return 0, missing(key)
	}
	x, ok := v.AsInt()
	if !ok {
		return 0, wrongType(key, "int", v.Kind())
	}
	return x, nil
}

// GetIntOr returns the integer parameter key, or def when it is absent.
func (b Bag) GetIntOr(key string, def int64) (int64, error) {
	if !b.Has(key) {
		return def, nil
	}
	return b.GetInt(key)
}

// GetStringList returns key as a list of strings. A single string is
// accepted as a one-element list.
func (b Bag) GetStringList(key string) ([]string, error) {
	v, ok := b.Get(key)
	if !ok {
		return nil, missing(key)
	}
	if s, ok := v.AsString(); ok {
		return []string{s}, nil
	}
	items, ok := v.Items()
	if !ok {
		return nil, wrongType(key, "string or array of strings", v.Kind())
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.AsText()
		if !ok {
			return nil, wrongType(fmt.Sprintf("%s[%d]", key, i), "string", item.Kind())
		}
		out = append(out, s)
	}
	return out, nil
}

// GetMap returns the map parameter key as a Bag.
func (b Bag) GetMap(key string) (Bag, error) {
	v, ok := b.Get(key)
	if !ok {
		return nil, missing(key)
	}
	m, ok := v.AsBag()
	if !ok {
		return nil, wrongType(key, "map", v.Kind())
	}
	return m, nil
}

// GetMapList returns key as a list of Bags. A single map is accepted as a
// one-element list.
func (b Bag) GetMapList(key string) ([]Bag, error) {
	v, ok := b.Get(key)
	if !ok {
		return nil, missing(key)
	}
	if m, ok := v.AsBag(); ok {
		return []Bag{m}, nil
	}
	items, ok := v.Items()
	if !ok {
		return nil, wrongType(key, "map or array of maps", v.Kind())
	}
	out := make([]Bag, 0, len(items))
	for i, item := range items {
		m, ok := item.AsBag()
		if !ok {
			return nil, wrongType(fmt.Sprintf("%s[%d]", key, i), "map", item.Kind())
		}
		out = append(out, m)
	}
	return out, nil
}
