package bootstrap

import (
	"context"
	"fmt"
	"sort"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/registry"
)

// Standard operation names.
const (
	OpReadResource            = "read-resource"
	OpReadAttribute           = "read-attribute"
	OpReadChildrenNames       = "read-children-names"
	OpReadResourceDescription = "read-resource-description"
	OpReadOperationNames      = "read-operation-names"
	OpWriteAttribute          = "write-attribute"
	OpUndefineAttribute       = "undefine-attribute"
	OpAdd                     = "add"
	OpRemove                  = "remove"
	OpComposite               = "composite"
)

// Operation body parameters.
const (
	ParamName      = "name"
	ParamValue     = "value"
	ParamChildType = "child-type"
	ParamRecursive = "recursive"
	ParamLocale    = "locale"
)

// reserved body keys that are never attributes.
var reserved = map[string]bool{
	model.KeyOperation:  true,
	model.KeyAddress:    true,
	"operation-headers": true,
}

// handlers implements the standard operations. Reads answer from the invocation's snapshot;
// writes validate against the snapshot and the registry and acknowledge at the domain level.
type handlers struct {
	root *registry.NodeRegistration
}

func notFound(format string, args ...interface{}) error {
	return &registry.RegistryError{Code: registry.CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...interface{}) error {
	return &registry.RegistryError{Code: registry.CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func resourceAt(op *registry.Operation) (model.Node, error) {
	node, ok := model.Navigate(op.Model, op.Address)
	if !ok {
		return nil, notFound("resource %s not found", op.Address)
	}
	return node, nil
}

func stringParam(op *registry.Operation, key string) (string, error) {
	v, ok := model.String(op.Body, key)
	if !ok || v == "" {
		return "", invalid("%s requires parameter %q", op.Name, key)
	}
	return v, nil
}

func (h *handlers) readResource(_ context.Context, op *registry.Operation) (interface{}, error) {
	node, err := resourceAt(op)
	if err != nil {
		return nil, err
	}
	out := model.Clone(node)
	if recursive, _ := op.Body[ParamRecursive].(bool); recursive {
		return out, nil
	}
	for key, v := range out {
		children, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		names := make(map[string]interface{}, len(children))
		for name := range children {
			names[name] = nil
		}
		out[key] = names
	}
	return out, nil
}

func (h *handlers) readAttribute(_ context.Context, op *registry.Operation) (interface{}, error) {
	name, err := stringParam(op, ParamName)
	if err != nil {
		return nil, err
	}
	node, err := resourceAt(op)
	if err != nil {
		return nil, err
	}
	if v, ok := node[name]; ok {
		return model.Clone(model.Node{name: v})[name], nil
	}
	if access, ok := h.root.GetAttributeAccess(op.Address, name); ok {
		return access.Default, nil
	}
	return nil, notFound("attribute %q not found at %s", name, op.Address)
}

func (h *handlers) readChildrenNames(_ context.Context, op *registry.Operation) (interface{}, error) {
	childType, err := stringParam(op, ParamChildType)
	if err != nil {
		return nil, err
	}
	node, err := resourceAt(op)
	if err != nil {
		return nil, err
	}
	children, ok := model.Child(node, childType)
	if !ok {
		for _, known := range h.root.GetChildNames(op.Address) {
			if known == childType {
				return []string{}, nil
			}
		}
		return nil, invalid("unknown child type %q at %s", childType, op.Address)
	}
	return model.Keys(children), nil
}

func (h *handlers) readResourceDescription(_ context.Context, op *registry.Operation) (interface{}, error) {
	locale, _ := model.String(op.Body, ParamLocale)
	return h.root.Describe(op.Address, locale)
}

func (h *handlers) readOperationNames(_ context.Context, op *registry.Operation) (interface{}, error) {
	descs := h.root.GetOperationDescriptions(op.Address)
	names := make([]string, 0, len(descs))
	for name := range descs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (h *handlers) writableAttribute(op *registry.Operation) (string, error) {
	name, err := stringParam(op, ParamName)
	if err != nil {
		return "", err
	}
	if _, err := resourceAt(op); err != nil {
		return "", err
	}
	access, ok := h.root.GetAttributeAccess(op.Address, name)
	if !ok {
		return "", notFound("attribute %q not found at %s", name, op.Address)
	}
	if access.Access != registry.AccessReadWrite {
		return "", invalid("attribute %q at %s is %s", name, op.Address, access.Access)
	}
	return name, nil
}

func (h *handlers) writeAttribute(_ context.Context, op *registry.Operation) (interface{}, error) {
	name, err := h.writableAttribute(op)
	if err != nil {
		return nil, err
	}
	if _, ok := op.Body[ParamValue]; !ok {
		return nil, invalid("write-attribute of %q requires parameter %q", name, ParamValue)
	}
	return nil, nil
}

func (h *handlers) undefineAttribute(_ context.Context, op *registry.Operation) (interface{}, error) {
	_, err := h.writableAttribute(op)
	return nil, err
}

func (h *handlers) add(_ context.Context, op *registry.Operation) (interface{}, error) {
	if op.Address.IsEmpty() {
		return nil, invalid("cannot add the root resource")
	}
	if _, exists := model.Navigate(op.Model, op.Address); exists {
		return nil, &registry.RegistryError{
			Code:    registry.CodeDuplicateRegistration,
			Message: fmt.Sprintf("resource %s already exists", op.Address),
		}
	}
	if _, ok := model.Navigate(op.Model, op.Address.Parent()); !ok {
		return nil, notFound("parent resource %s not found", op.Address.Parent())
	}

	known := map[string]bool{}
	for _, name := range h.root.GetAttributeNames(op.Address) {
		known[name] = true
	}
	for _, key := range model.Keys(op.Body) {
		if reserved[key] {
			continue
		}
		if !known[key] {
			return nil, invalid("unknown attribute %q for %s", key, op.Address)
		}
	}
	return nil, nil
}

func (h *handlers) remove(_ context.Context, op *registry.Operation) (interface{}, error) {
	if op.Address.IsEmpty() {
		return nil, invalid("cannot remove the root resource")
	}
	if _, err := resourceAt(op); err != nil {
		return nil, err
	}
	return nil, nil
}

func acknowledge(_ context.Context, _ *registry.Operation) (interface{}, error) {
	return nil, nil
}

// registerStandardOperations registers the standard operations on the root. All but
// composite are inherited by every resource.
func registerStandardOperations(root *registry.NodeRegistration) error {
	h := &handlers{root: root}

	type standard struct {
		name    string
		handler registry.OperationHandlerFunc
		desc    string
		flags   []registry.Flag
	}
	ops := []standard{
		{OpReadResource, h.readResource, "Read the resource's attributes and children", []registry.Flag{registry.ReadOnly}},
		{OpReadAttribute, h.readAttribute, "Read one attribute", []registry.Flag{registry.ReadOnly}},
		{OpReadChildrenNames, h.readChildrenNames, "List child names of one type", []registry.Flag{registry.ReadOnly}},
		{OpReadResourceDescription, h.readResourceDescription, "Describe the resource", []registry.Flag{registry.ReadOnly}},
		{OpReadOperationNames, h.readOperationNames, "List the operations of the resource", []registry.Flag{registry.ReadOnly}},
		{OpWriteAttribute, h.writeAttribute, "Write one attribute", nil},
		{OpUndefineAttribute, h.undefineAttribute, "Undefine one attribute", nil},
		{OpAdd, h.add, "Add the resource", nil},
		{OpRemove, h.remove, "Remove the resource", nil},
	}
	for _, op := range ops {
		if err := root.RegisterOperationHandler(op.name, op.handler, registry.StaticDescription(op.desc), true, op.flags...); err != nil {
			return err
		}
	}
	return root.RegisterOperationHandler(OpComposite, registry.OperationHandlerFunc(acknowledge),
		registry.StaticDescription("Execute several operations as one unit"), false)
}

// parseElement parses a "type=value" child key.
func parseElement(key string) (address.PathElement, error) {
	addr, err := address.Parse("/" + key)
	if err != nil {
		return address.PathElement{}, err
	}
	if addr.Len() != 1 {
		return address.PathElement{}, invalid("child key %q must be a single type=value element", key)
	}
	return addr.Element(0), nil
}
