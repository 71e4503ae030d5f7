package domain

import (
	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/model"
)

// Error codes.
const (
	CodeResolutionFailed      = "RESOLUTION_FAILED"
	CodeConflictingOperations = "CONFLICTING_SERVER_OPERATIONS"
)

// ResolutionError reports that no valid mapping could be computed.
type ResolutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResolutionError) Error() string {
	return e.Code + ": " + e.Message
}

// OperationResolver computes which servers of one host must run what for a domain operation.
// Implementations must not modify the models.
type OperationResolver interface {
	ServerOperations(op model.Node, addr address.PathAddress, domainModel, hostModel model.Node) (ServerOperations, error)
}

// ResolverFunc adapts a function to OperationResolver.
type ResolverFunc func(op model.Node, addr address.PathAddress, domainModel, hostModel model.Node) (ServerOperations, error)

// ServerOperations calls f.
func (f ResolverFunc) ServerOperations(op model.Node, addr address.PathAddress, domainModel, hostModel model.Node) (ServerOperations, error) {
	return f(op, addr, domainModel, hostModel)
}

// ServerPusher is implemented by resolvers that can target every server in scope of an
// address. It serves operations flagged DOMAIN_PUSH_TO_SERVERS whose resolved mapping is empty.
type ServerPusher interface {
	PushToServers(op model.Node, addr address.PathAddress, domainModel, hostModel model.Node) (ServerOperations, error)
}
