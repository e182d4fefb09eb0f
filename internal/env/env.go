// Package env holds the build environment: a layered key/value store
// where derived environments see their parent's values and may shadow them.
package env

import (
	"fmt"
	"strings"
	"sync"
)

// Environment is a set of build variables. Values are strings, lists of
// strings or any scalar decoded from the build file.
type Environment struct {
	parent *Environment

	mu   sync.RWMutex
	vars map[string]any
}

// New creates an empty root environment
func New() *Environment {
	return &Environment{vars: make(map[string]any, 16)}
}

// FromMap creates a root environment holding a copy of vars
func FromMap(vars map[string]any) *Environment {
	e := New()
	for k, v := range vars {
		e.vars[k] = normalize(v)
	}
	return e
}

// Derive creates a child environment; writes to the child never reach the parent
func (e *Environment) Derive() *Environment {
	child := New()
	child.parent = e
	return child
}

// Set stores a value in this layer
func (e *Environment) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[key] = normalize(value)
}

// Get looks key up in this layer and then in the parents
func (e *Environment) Get(key string) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.vars[key]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Merged flattens the layers into a fresh map. Child values win. The caller
// owns the returned map; list values are copied so it can be mutated freely.
func (e *Environment) Merged() map[string]any {
	var chain []*Environment
	for cur := e; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}

	merged := make(map[string]any, 32)
	for i := len(chain) - 1; i >= 0; i-- {
		layer := chain[i]
		layer.mu.RLock()
		for k, v := range layer.vars {
			if list, ok := v.([]string); ok {
				v = append([]string(nil), list...)
			}
			merged[k] = v
		}
		layer.mu.RUnlock()
	}
	return merged
}

// ToList converts a value to a list of strings
func ToList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, Stringify(item))
		}
		return out
	case string:
		return strings.Fields(val)
	default:
		return []string{Stringify(val)}
	}
}

// Stringify renders a value the way it is substituted into commands:
// lists are joined with single spaces
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, " ")
	case []any:
		return strings.Join(ToList(val), " ")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// normalize converts YAML decoded lists to []string so lookups see one shape
func normalize(v any) any {
	if list, ok := v.([]any); ok {
		return ToList(list)
	}
	return v
}
