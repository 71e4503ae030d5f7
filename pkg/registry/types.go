// Package registry implements the hierarchical registry of management operation handlers.
package registry

import (
	"context"
	"sort"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/model"
)

// Error codes.
const (
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidArgument       = "INVALID_ARGUMENT"
	CodeDuplicateRegistration = "DUPLICATE_REGISTRATION"
	CodeInternal              = "INTERNAL_ERROR"
)

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// Flag tags an operation entry.
type Flag string

const (
	// ReadOnly operations never mutate state and are never fanned out to servers.
	ReadOnly Flag = "READ_ONLY"
	// DeploymentUpload operations store content in the domain repository; they are never
	// fanned out to servers.
	DeploymentUpload Flag = "DEPLOYMENT_UPLOAD"
	// DomainPushToServers operations go to every server in scope of their address when the
	// resolver maps them to no server.
	DomainPushToServers Flag = "DOMAIN_PUSH_TO_SERVERS"
	// HostControllerOnly operations run on the controller and are never fanned out.
	HostControllerOnly Flag = "HOST_CONTROLLER_ONLY"
)

// Flags is a set of flags. Registry lookups hand out copies.
type Flags map[Flag]struct{}

// NewFlags builds a flag set.
func NewFlags(flags ...Flag) Flags {
	out := make(Flags, len(flags))
	for _, f := range flags {
		out[f] = struct{}{}
	}
	return out
}

// Clone returns an independent copy of the set.
func (f Flags) Clone() Flags {
	out := make(Flags, len(f))
	for flag := range f {
		out[flag] = struct{}{}
	}
	return out
}

// Has reports whether f is in the set.
func (f Flags) Has(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// List returns the flags in sorted order.
func (f Flags) List() []string {
	out := make([]string, 0, len(f))
	for flag := range f {
		out = append(out, string(flag))
	}
	sort.Strings(out)
	return out
}

// DescriptionProvider supplies human-readable model descriptions.
type DescriptionProvider interface {
	Describe(locale string) model.Node
}

// DescriptionFunc adapts a function to DescriptionProvider.
type DescriptionFunc func(locale string) model.Node

// Describe calls f.
func (f DescriptionFunc) Describe(locale string) model.Node {
	return f(locale)
}

// StaticDescription returns a provider with a fixed description text.
func StaticDescription(text string) DescriptionProvider {
	return DescriptionFunc(func(string) model.Node {
		return model.Node{"description": text}
	})
}

// Operation is one invocation of a registered handler.
type Operation struct {
	Name    string
	Address address.PathAddress
	Body    model.Node
	// Model is the read-only domain model snapshot for the invocation.
	Model model.Node
}

// OperationHandler executes an operation and returns its domain-level result.
type OperationHandler interface {
	Execute(ctx context.Context, op *Operation) (interface{}, error)
}

// OperationHandlerFunc adapts a function to OperationHandler.
type OperationHandlerFunc func(ctx context.Context, op *Operation) (interface{}, error)

// Execute calls f.
func (f OperationHandlerFunc) Execute(ctx context.Context, op *Operation) (interface{}, error) {
	return f(ctx, op)
}

// OperationEntry is what a lookup returns for an operation.
type OperationEntry struct {
	Name        string
	Handler     OperationHandler
	Description DescriptionProvider
	Inherited   bool
	Flags       Flags
	// Proxied is set when the entry was answered by a proxy sub-model.
	Proxied bool
}

// AccessType describes how an attribute may be used.
type AccessType string

const (
	AccessReadOnly  AccessType = "read-only"
	AccessReadWrite AccessType = "read-write"
	AccessMetric    AccessType = "metric"
)

// AttributeAccess is the registration metadata of one attribute.
type AttributeAccess struct {
	Access      AccessType
	Description string
	// Default is returned by read-attribute when the model has no value.
	Default interface{}
}
