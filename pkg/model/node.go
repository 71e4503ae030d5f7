// Package model holds the untyped management model tree and operation body helpers.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/morezero/domain-controller/pkg/address"
)

const logPrefix = "model:node"

// Operation body keys.
const (
	KeyOperation = "operation"
	KeyAddress   = "address"
	KeySteps     = "steps"
)

// Node is a JSON-like tree: maps, slices, strings, numbers, booleans and nil.
type Node = map[string]interface{}

// Canonical returns a byte form of v in which structurally equal values are identical.
// Map keys are emitted in sorted order.
func Canonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalize(v)); err != nil {
		return nil, fmt.Errorf("%s - failed to canonicalize: %w", logPrefix, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b interface{}) bool {
	ca, err := Canonical(a)
	if err != nil {
		return false
	}
	cb, err := Canonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// normalize converts yaml-style maps to string-keyed maps so they encode.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// Clone deep-copies a node.
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	return cloneValue(n).(Node)
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// OperationName returns the "operation" field of an operation body.
func OperationName(op Node) string {
	s, _ := op[KeyOperation].(string)
	return s
}

// OperationAddress decodes the "address" field of an operation body.
func OperationAddress(op Node) (address.PathAddress, error) {
	return address.FromList(op[KeyAddress])
}

// WithAddress returns a copy of op targeting addr.
func WithAddress(op Node, addr address.PathAddress) Node {
	out := Clone(op)
	if out == nil {
		out = Node{}
	}
	out[KeyAddress] = addr.ToList()
	return out
}

// NewOperation builds an operation body.
func NewOperation(name string, addr address.PathAddress) Node {
	return Node{KeyOperation: name, KeyAddress: addr.ToList()}
}

// Steps returns the "steps" list of a composite body.
func Steps(op Node) ([]Node, error) {
	raw, ok := op[KeySteps]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s - steps must be a list, got %T", logPrefix, raw)
	}
	out := make([]Node, 0, len(list))
	for i, item := range list {
		step, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s - step %d must be an object, got %T", logPrefix, i, item)
		}
		out = append(out, step)
	}
	return out, nil
}

// Child returns node[key] as a Node.
func Child(n Node, key string) (Node, bool) {
	if n == nil {
		return nil, false
	}
	c, ok := n[key].(map[string]interface{})
	return c, ok
}

// String returns node[key] as a string.
func String(n Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	s, ok := n[key].(string)
	return s, ok
}

// Keys returns the sorted keys of n.
func Keys(n Node) []string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Navigate walks the model along addr, treating each element as node[key][value].
func Navigate(root Node, addr address.PathAddress) (Node, bool) {
	current := root
	it := addr.Iterator()
	for it.HasNext() {
		e, _ := it.Next()
		byType, ok := Child(current, e.Key)
		if !ok {
			return nil, false
		}
		next, ok := Child(byType, e.Value)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, current != nil
}
