package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/model"
)

const describeLogPrefix = "registry:describe"

// DescribeOutput is the full registration metadata of one address.
type DescribeOutput struct {
	Address     string                 `json:"address"`
	Location    string                 `json:"location"`
	Description model.Node             `json:"description,omitempty"`
	Operations  []OperationDescription `json:"operations"`
	Attributes  []AttributeDescription `json:"attributes"`
	Children    []string               `json:"children"`
}

// OperationDescription describes one operation visible at an address.
type OperationDescription struct {
	Name        string     `json:"name"`
	Description model.Node `json:"description,omitempty"`
	Flags       []string   `json:"flags"`
	Inherited   bool       `json:"inherited,omitempty"`
}

// AttributeDescription describes one registered attribute.
type AttributeDescription struct {
	Name        string      `json:"name"`
	Access      AccessType  `json:"access"`
	Description string      `json:"description,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Describe collects the model description, operations, attributes and child types at addr.
func (n *NodeRegistration) Describe(addr address.PathAddress, locale string) (*DescribeOutput, error) {
	slog.Debug(fmt.Sprintf("%s - address=%s", describeLogPrefix, addr))

	node, ok := n.SubModel(addr)
	if !ok {
		return nil, &RegistryError{Code: CodeNotFound, Message: fmt.Sprintf("no resource registered at %s", addr)}
	}

	out := &DescribeOutput{
		Address:    addr.String(),
		Location:   node.LocationString(),
		Operations: []OperationDescription{},
		Attributes: []AttributeDescription{},
		Children:   n.GetChildNames(addr),
	}
	if desc, ok := n.GetModelDescription(addr); ok {
		out.Description = desc.Describe(locale)
	}

	descs := n.GetOperationDescriptions(addr)
	names := make([]string, 0, len(descs))
	for name := range descs {
		names = append(names, name)
	}
	for _, name := range sortedStrings(names) {
		entry, err := n.LookupOperation(addr, name)
		if err != nil {
			continue
		}
		od := OperationDescription{Name: name, Flags: entry.Flags.List(), Inherited: entry.Inherited}
		if entry.Description != nil {
			od.Description = entry.Description.Describe(locale)
		}
		out.Operations = append(out.Operations, od)
	}

	for _, name := range n.GetAttributeNames(addr) {
		access, _ := n.GetAttributeAccess(addr, name)
		out.Attributes = append(out.Attributes, AttributeDescription{
			Name:        name,
			Access:      access.Access,
			Description: access.Description,
			Default:     access.Default,
		})
	}
	if out.Children == nil {
		out.Children = []string{}
	}
	return out, nil
}

func sortedStrings(s []string) []string {
	sort.Strings(s)
	return s
}
