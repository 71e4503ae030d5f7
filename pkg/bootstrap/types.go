// Package bootstrap builds the management registry tree of the domain controller from a
// declarative resource layout and registers the standard domain operations on it.
package bootstrap

// AttributeSpec declares one attribute of a resource type.
type AttributeSpec struct {
	Access      string      `json:"access,omitempty" yaml:"access,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// OperationSpec declares an extra operation registered on a resource type. Its handler
// acknowledges at the domain level; Flags control fan-out.
type OperationSpec struct {
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Flags       []string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// ResourceSpec declares a resource type: its description, attributes, extra operations and
// child types keyed by "type=value" (value "*" for any).
type ResourceSpec struct {
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes  map[string]AttributeSpec `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Operations  map[string]OperationSpec `json:"operations,omitempty" yaml:"operations,omitempty"`
	Children    map[string]ResourceSpec  `json:"children,omitempty" yaml:"children,omitempty"`
}

// BootstrapConfig is the root layout configuration.
type BootstrapConfig struct {
	Name        string       `json:"name" yaml:"name"`
	Version     string       `json:"version" yaml:"version"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Root        ResourceSpec `json:"root" yaml:"root"`
}

// CountResources returns the number of resource types declared below and including spec.
func (spec ResourceSpec) CountResources() int {
	n := 1
	for _, child := range spec.Children {
		n += child.CountResources()
	}
	return n
}
