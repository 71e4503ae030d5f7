// Package address defines the hierarchical addresses used to locate resources and their handlers.
package address

import (
	"fmt"
	"strings"
)

const logPrefix = "address:address"

// Wildcard is the element value that matches any value at lookup time.
const Wildcard = "*"

// PathElement is one key=value step of an address (e.g. subsystem=logging).
type PathElement struct {
	Key   string
	Value string
}

// Element creates a PathElement.
func Element(key, value string) PathElement {
	return PathElement{Key: key, Value: value}
}

// IsWildcard reports whether the element matches any value for its key.
func (e PathElement) IsWildcard() bool {
	return e.Value == Wildcard
}

// Validate checks the element's key and value are well formed.
func (e PathElement) Validate() error {
	if e.Key == "" || strings.TrimSpace(e.Key) != e.Key {
		return &InvalidAddressError{Message: fmt.Sprintf("invalid key %q", e.Key)}
	}
	if strings.ContainsAny(e.Key, "=/") {
		return &InvalidAddressError{Message: fmt.Sprintf("key %q contains a reserved character", e.Key)}
	}
	if strings.TrimSpace(e.Value) == "" {
		return &InvalidAddressError{Message: fmt.Sprintf("empty value for key %q", e.Key)}
	}
	if strings.Contains(e.Value, "/") {
		return &InvalidAddressError{Message: fmt.Sprintf("value %q for key %q contains a reserved character", e.Value, e.Key)}
	}
	return nil
}

func (e PathElement) String() string {
	return e.Key + "=" + e.Value
}

// InvalidAddressError reports a malformed address or element.
type InvalidAddressError struct {
	Message string
}

func (e *InvalidAddressError) Error() string {
	return "INVALID_ARGUMENT: " + e.Message
}

// PathAddress is an ordered, immutable sequence of elements. The zero value is the root address.
type PathAddress struct {
	elements []PathElement
}

// EmptyAddress is the root address.
var EmptyAddress = PathAddress{}

// New creates an address from the given elements. The slice is copied.
func New(elements ...PathElement) PathAddress {
	if len(elements) == 0 {
		return EmptyAddress
	}
	cp := make([]PathElement, len(elements))
	copy(cp, elements)
	return PathAddress{elements: cp}
}

// Len returns the number of elements.
func (a PathAddress) Len() int {
	return len(a.elements)
}

// IsEmpty reports whether this is the root address.
func (a PathAddress) IsEmpty() bool {
	return len(a.elements) == 0
}

// Element returns the element at index i.
func (a PathAddress) Element(i int) PathElement {
	return a.elements[i]
}

// Elements returns a copy of the elements.
func (a PathAddress) Elements() []PathElement {
	cp := make([]PathElement, len(a.elements))
	copy(cp, a.elements)
	return cp
}

// Last returns the final element, or false for the root address.
func (a PathAddress) Last() (PathElement, bool) {
	if len(a.elements) == 0 {
		return PathElement{}, false
	}
	return a.elements[len(a.elements)-1], true
}

// Parent returns the address without its final element. The parent of the root is the root.
func (a PathAddress) Parent() PathAddress {
	if len(a.elements) <= 1 {
		return EmptyAddress
	}
	return New(a.elements[:len(a.elements)-1]...)
}

// Append returns a new address with the given elements added.
func (a PathAddress) Append(elements ...PathElement) PathAddress {
	cp := make([]PathElement, 0, len(a.elements)+len(elements))
	cp = append(cp, a.elements...)
	cp = append(cp, elements...)
	return PathAddress{elements: cp}
}

// SubAddress returns the elements from index start onwards.
func (a PathAddress) SubAddress(start int) PathAddress {
	if start >= len(a.elements) {
		return EmptyAddress
	}
	return New(a.elements[start:]...)
}

// Equal reports structural equality.
func (a PathAddress) Equal(b PathAddress) bool {
	if len(a.elements) != len(b.elements) {
		return false
	}
	for i := range a.elements {
		if a.elements[i] != b.elements[i] {
			return false
		}
	}
	return true
}

// Validate checks every element.
func (a PathAddress) Validate() error {
	for _, e := range a.elements {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String renders the address as /key=value/key=value; the root renders as "/".
func (a PathAddress) String() string {
	if len(a.elements) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, e := range a.elements {
		b.WriteByte('/')
		b.WriteString(e.String())
	}
	return b.String()
}

// Iterator returns a forward iterator over the elements.
func (a PathAddress) Iterator() *Iterator {
	return &Iterator{elements: a.elements}
}

// Iterator consumes an address one element at a time.
type Iterator struct {
	elements []PathElement
	pos      int
}

// HasNext reports whether elements remain.
func (it *Iterator) HasNext() bool {
	return it.pos < len(it.elements)
}

// Next consumes and returns the next element.
func (it *Iterator) Next() (PathElement, bool) {
	if it.pos >= len(it.elements) {
		return PathElement{}, false
	}
	e := it.elements[it.pos]
	it.pos++
	return e, true
}

// Consumed returns the number of elements consumed so far.
func (it *Iterator) Consumed() int {
	return it.pos
}

// Parse parses the /key=value/key=value form. "" and "/" are the root address.
func Parse(s string) (PathAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return EmptyAddress, nil
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	elements := make([]PathElement, 0, len(parts))
	for _, p := range parts {
		idx := strings.Index(p, "=")
		if idx < 0 {
			return EmptyAddress, &InvalidAddressError{Message: fmt.Sprintf("segment %q is not key=value", p)}
		}
		e := PathElement{Key: p[:idx], Value: p[idx+1:]}
		if err := e.Validate(); err != nil {
			return EmptyAddress, err
		}
		elements = append(elements, e)
	}
	return PathAddress{elements: elements}, nil
}

// FromList converts the operation-body form ([{"key":"value"}, ...]) into an address.
// A string is accepted and parsed with Parse.
func FromList(v interface{}) (PathAddress, error) {
	switch t := v.(type) {
	case nil:
		return EmptyAddress, nil
	case string:
		return Parse(t)
	case []interface{}:
		elements := make([]PathElement, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]interface{})
			if !ok || len(m) != 1 {
				return EmptyAddress, &InvalidAddressError{Message: fmt.Sprintf("address element %d must be a single key=value object", i)}
			}
			for k, val := range m {
				s, ok := val.(string)
				if !ok {
					return EmptyAddress, &InvalidAddressError{Message: fmt.Sprintf("address element %d value must be a string", i)}
				}
				e := PathElement{Key: k, Value: s}
				if err := e.Validate(); err != nil {
					return EmptyAddress, err
				}
				elements = append(elements, e)
			}
		}
		return New(elements...), nil
	case []map[string]interface{}:
		items := make([]interface{}, len(t))
		for i := range t {
			items[i] = t[i]
		}
		return FromList(items)
	default:
		return EmptyAddress, fmt.Errorf("%s - unsupported address type %T", logPrefix, v)
	}
}

// ToList converts the address into the operation-body form.
func (a PathAddress) ToList() []interface{} {
	out := make([]interface{}, len(a.elements))
	for i, e := range a.elements {
		out[i] = map[string]interface{}{e.Key: e.Value}
	}
	return out
}
