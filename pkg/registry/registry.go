package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/morezero/domain-controller/pkg/address"
)

const logPrefix = "registry:registry"

// childSlot holds either a concrete sub-model or a proxy handler, never both.
type childSlot struct {
	node  *NodeRegistration
	proxy OperationHandler
}

type descriptionHolder struct {
	provider DescriptionProvider
}

// NodeRegistration is one node of the registry tree.
//
// Readers never lock: children, operations and attributes are immutable maps published
// through atomic pointers. Writers serialize on mu and publish copies that already
// contain fully built entries.
type NodeRegistration struct {
	parent  *NodeRegistration
	element address.PathElement

	mu          sync.Mutex
	description atomic.Pointer[descriptionHolder]
	children    atomic.Pointer[map[address.PathElement]childSlot]
	operations  atomic.Pointer[map[string]*OperationEntry]
	attributes  atomic.Pointer[map[string]AttributeAccess]
}

// NewRootRegistration creates the root of a registry tree.
func NewRootRegistration(desc DescriptionProvider) *NodeRegistration {
	return newNode(nil, address.PathElement{}, desc)
}

func newNode(parent *NodeRegistration, element address.PathElement, desc DescriptionProvider) *NodeRegistration {
	n := &NodeRegistration{parent: parent, element: element}
	children := map[address.PathElement]childSlot{}
	operations := map[string]*OperationEntry{}
	attributes := map[string]AttributeAccess{}
	n.children.Store(&children)
	n.operations.Store(&operations)
	n.attributes.Store(&attributes)
	if desc != nil {
		n.description.Store(&descriptionHolder{provider: desc})
	}
	return n
}

// LocationString renders the path from the root, e.g. "(profile=default)(subsystem=foo)".
// The root renders as "".
func (n *NodeRegistration) LocationString() string {
	if n.parent == nil {
		return ""
	}
	return n.parent.LocationString() + "(" + n.element.Key + "=" + n.element.Value + ")"
}

// Address returns the address of this node relative to the root.
func (n *NodeRegistration) Address() address.PathAddress {
	if n.parent == nil {
		return address.EmptyAddress
	}
	return n.parent.Address().Append(n.element)
}

// RegisterSubModel creates, or returns the existing, descendant at addr.
// Intermediate nodes are created without a description.
func (n *NodeRegistration) RegisterSubModel(addr address.PathAddress, desc DescriptionProvider) (*NodeRegistration, error) {
	if addr.IsEmpty() {
		return nil, &RegistryError{Code: CodeInvalidArgument, Message: fmt.Sprintf("cannot register a sub-model at an empty address under %q", n.LocationString())}
	}
	if err := addr.Validate(); err != nil {
		return nil, &RegistryError{Code: CodeInvalidArgument, Message: err.Error()}
	}

	current := n
	for i := 0; i < addr.Len(); i++ {
		var d DescriptionProvider
		if i == addr.Len()-1 {
			d = desc
		}
		child, err := current.getOrCreateChild(addr.Element(i), d)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

func (n *NodeRegistration) getOrCreateChild(e address.PathElement, desc DescriptionProvider) (*NodeRegistration, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	current := *n.children.Load()
	if slot, ok := current[e]; ok {
		if slot.proxy != nil {
			return nil, &RegistryError{
				Code:    CodeInvalidArgument,
				Message: fmt.Sprintf("%s already registered as a proxy at %q", e, n.LocationString()),
			}
		}
		if desc != nil {
			slot.node.description.CompareAndSwap(nil, &descriptionHolder{provider: desc})
		}
		return slot.node, nil
	}

	child := newNode(n, e, desc)
	next := make(map[address.PathElement]childSlot, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[e] = childSlot{node: child}
	n.children.Store(&next)

	slog.Debug(fmt.Sprintf("%s - Registered sub-model %s", logPrefix, child.LocationString()))
	return child, nil
}

// RegisterProxySubModel delegates the subtree at addr to handler.
func (n *NodeRegistration) RegisterProxySubModel(addr address.PathAddress, handler OperationHandler) error {
	if handler == nil {
		return &RegistryError{Code: CodeInvalidArgument, Message: "proxy handler is nil"}
	}
	last, ok := addr.Last()
	if !ok {
		return &RegistryError{Code: CodeInvalidArgument, Message: fmt.Sprintf("cannot register a proxy at an empty address under %q", n.LocationString())}
	}
	if err := addr.Validate(); err != nil {
		return &RegistryError{Code: CodeInvalidArgument, Message: err.Error()}
	}

	parent := n
	if addr.Len() > 1 {
		p, err := n.RegisterSubModel(addr.Parent(), nil)
		if err != nil {
			return err
		}
		parent = p
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	current := *parent.children.Load()
	if slot, exists := current[last]; exists {
		kind := "sub-model"
		if slot.proxy != nil {
			kind = "proxy"
		}
		return &RegistryError{
			Code:    CodeInvalidArgument,
			Message: fmt.Sprintf("%s already registered as a %s at %q", last, kind, parent.LocationString()),
		}
	}
	next := make(map[address.PathElement]childSlot, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[last] = childSlot{proxy: handler}
	parent.children.Store(&next)

	slog.Debug(fmt.Sprintf("%s - Registered proxy %s(%s)", logPrefix, parent.LocationString(), last))
	return nil
}

// RegisterOperationHandler attaches an operation to this node. With inherited set,
// descendants without their own entry for name answer with this one.
func (n *NodeRegistration) RegisterOperationHandler(name string, handler OperationHandler, desc DescriptionProvider, inherited bool, flags ...Flag) error {
	if name == "" {
		return &RegistryError{Code: CodeInvalidArgument, Message: "operation name is required"}
	}
	if handler == nil {
		return &RegistryError{Code: CodeInvalidArgument, Message: fmt.Sprintf("handler for %q is nil", name)}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	current := *n.operations.Load()
	if _, exists := current[name]; exists {
		return &RegistryError{
			Code:    CodeDuplicateRegistration,
			Message: fmt.Sprintf("operation %q already registered at %q", name, n.LocationString()),
		}
	}
	entry := &OperationEntry{
		Name:        name,
		Handler:     handler,
		Description: desc,
		Inherited:   inherited,
		Flags:       NewFlags(flags...),
	}
	next := make(map[string]*OperationEntry, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[name] = entry
	n.operations.Store(&next)
	return nil
}

// RegisterAttribute records attribute metadata on this node.
func (n *NodeRegistration) RegisterAttribute(name string, access AttributeAccess) error {
	if name == "" {
		return &RegistryError{Code: CodeInvalidArgument, Message: "attribute name is required"}
	}
	if access.Access == "" {
		access.Access = AccessReadWrite
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	current := *n.attributes.Load()
	if _, exists := current[name]; exists {
		return &RegistryError{
			Code:    CodeDuplicateRegistration,
			Message: fmt.Sprintf("attribute %q already registered at %q", name, n.LocationString()),
		}
	}
	next := make(map[string]AttributeAccess, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[name] = access
	n.attributes.Store(&next)
	return nil
}

// resolution is where a traversal ended: a concrete node (with the nodes visited on
// the way there) or a proxy that owns the rest of the address.
type resolution struct {
	path  []*NodeRegistration
	proxy OperationHandler
}

func (r resolution) terminal() *NodeRegistration {
	return r.path[len(r.path)-1]
}

// walk consumes addr one element per level: exact child, else wildcard child.
// A proxy slot stops the traversal.
func (n *NodeRegistration) walk(addr address.PathAddress) (resolution, bool) {
	path := make([]*NodeRegistration, 0, addr.Len()+1)
	path = append(path, n)
	current := n

	it := addr.Iterator()
	for it.HasNext() {
		e, _ := it.Next()
		children := *current.children.Load()

		slot, ok := children[e]
		if !ok && !e.IsWildcard() {
			slot, ok = children[address.Element(e.Key, address.Wildcard)]
		}
		if !ok {
			return resolution{}, false
		}
		if slot.proxy != nil {
			return resolution{path: path, proxy: slot.proxy}, true
		}
		current = slot.node
		path = append(path, current)
	}
	return resolution{path: path}, true
}

// lookupEntry finds name at the terminal node, then on ancestors that registered it as inherited.
func (r resolution) lookupEntry(name string) (*OperationEntry, bool) {
	terminal := r.terminal()
	if entry, ok := (*terminal.operations.Load())[name]; ok {
		return entry, true
	}
	for i := len(r.path) - 2; i >= 0; i-- {
		if entry, ok := (*r.path[i].operations.Load())[name]; ok && entry.Inherited {
			return entry, true
		}
	}
	return nil, false
}

// SubModel returns the concrete node at addr.
func (n *NodeRegistration) SubModel(addr address.PathAddress) (*NodeRegistration, bool) {
	res, ok := n.walk(addr)
	if !ok || res.proxy != nil {
		return nil, false
	}
	return res.terminal(), true
}

// LookupOperation returns the entry answering name at addr, or a NOT_FOUND error.
func (n *NodeRegistration) LookupOperation(addr address.PathAddress, name string) (OperationEntry, error) {
	res, ok := n.walk(addr)
	if !ok {
		return OperationEntry{}, &RegistryError{
			Code:    CodeNotFound,
			Message: fmt.Sprintf("no resource registered at %s", addr),
		}
	}
	if res.proxy != nil {
		return OperationEntry{Name: name, Handler: res.proxy, Flags: Flags{}, Proxied: true}, nil
	}
	entry, ok := res.lookupEntry(name)
	if !ok {
		return OperationEntry{}, &RegistryError{
			Code:    CodeNotFound,
			Message: fmt.Sprintf("operation %q not found at %s", name, addr),
		}
	}
	out := *entry
	out.Flags = entry.Flags.Clone()
	return out, nil
}

// GetOperationHandler returns the handler answering name at addr.
func (n *NodeRegistration) GetOperationHandler(addr address.PathAddress, name string) (OperationHandler, bool) {
	entry, err := n.LookupOperation(addr, name)
	if err != nil {
		return nil, false
	}
	return entry.Handler, true
}

// GetOperationFlags returns the flags of name at addr; the empty set when unknown.
func (n *NodeRegistration) GetOperationFlags(addr address.PathAddress, name string) Flags {
	entry, err := n.LookupOperation(addr, name)
	if err != nil {
		return Flags{}
	}
	return entry.Flags
}

// GetOperationDescriptions returns every operation visible at addr, inherited ones included.
func (n *NodeRegistration) GetOperationDescriptions(addr address.PathAddress) map[string]DescriptionProvider {
	res, ok := n.walk(addr)
	if !ok || res.proxy != nil {
		return nil
	}
	out := map[string]DescriptionProvider{}
	for i := 0; i < len(res.path)-1; i++ {
		for name, entry := range *res.path[i].operations.Load() {
			if entry.Inherited {
				out[name] = entry.Description
			}
		}
	}
	for name, entry := range *res.terminal().operations.Load() {
		out[name] = entry.Description
	}
	return out
}

// GetOperationDescription returns the description of name at addr.
func (n *NodeRegistration) GetOperationDescription(addr address.PathAddress, name string) (DescriptionProvider, bool) {
	res, ok := n.walk(addr)
	if !ok || res.proxy != nil {
		return nil, false
	}
	entry, ok := res.lookupEntry(name)
	if !ok || entry.Description == nil {
		return nil, false
	}
	return entry.Description, true
}

// GetModelDescription returns the description registered with the sub-model at addr.
func (n *NodeRegistration) GetModelDescription(addr address.PathAddress) (DescriptionProvider, bool) {
	node, ok := n.SubModel(addr)
	if !ok {
		return nil, false
	}
	holder := node.description.Load()
	if holder == nil {
		return nil, false
	}
	return holder.provider, true
}

// GetAttributeNames returns the sorted attribute names registered at addr.
func (n *NodeRegistration) GetAttributeNames(addr address.PathAddress) []string {
	node, ok := n.SubModel(addr)
	if !ok {
		return nil
	}
	attrs := *node.attributes.Load()
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	return sortedStrings(names)
}

// GetAttributeAccess returns the metadata of attribute name at addr.
func (n *NodeRegistration) GetAttributeAccess(addr address.PathAddress, name string) (AttributeAccess, bool) {
	node, ok := n.SubModel(addr)
	if !ok {
		return AttributeAccess{}, false
	}
	access, ok := (*node.attributes.Load())[name]
	return access, ok
}

// GetChildNames returns the sorted distinct child types registered at addr.
func (n *NodeRegistration) GetChildNames(addr address.PathAddress) []string {
	node, ok := n.SubModel(addr)
	if !ok {
		return nil
	}
	seen := map[string]struct{}{}
	for e := range *node.children.Load() {
		seen[e.Key] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return sortedStrings(names)
}
