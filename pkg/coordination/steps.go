package coordination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/domain"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/pipeline"
	"github.com/morezero/domain-controller/pkg/registry"
)

const stepsLogPrefix = "coordination:steps"

// DomainStep executes the domain-level handler of every single operation and collects
// the results into the shared Response.
type DomainStep struct {
	ParsedOp ParsedOp
	Response *Response
}

// Execute implements pipeline.Step.
func (s *DomainStep) Execute(ctx context.Context, oc *pipeline.OperationContext) error {
	defer oc.CompleteStep()

	snapshot, err := oc.ReadModel(address.EmptyAddress)
	if err != nil {
		s.Response.SetFailure(err.Error())
		return nil
	}
	root := oc.RootRegistration()

	steps := s.ParsedOp.DomainSteps()
	composite := len(steps) > 1 || model.OperationName(s.ParsedOp.Operation()) == CompositeOperation
	for i, step := range steps {
		name := model.OperationName(step)
		addr, err := model.OperationAddress(step)
		if err != nil {
			s.Response.SetFailure(stepFailure(composite, i, err))
			return nil
		}
		entry, err := root.LookupOperation(addr, name)
		if err != nil {
			s.Response.SetFailure(stepFailure(composite, i, err))
			return nil
		}
		result, err := entry.Handler.Execute(ctx, &registry.Operation{Name: name, Address: addr, Body: step, Model: snapshot})
		if err != nil {
			s.Response.SetFailure(stepFailure(composite, i, err))
			return nil
		}
		s.Response.DomainResults = append(s.Response.DomainResults, result)
	}
	return nil
}

func stepFailure(composite bool, i int, err error) string {
	if composite {
		return fmt.Sprintf("step-%d: %v", i+1, err)
	}
	return err.Error()
}

// ServerOperationsResolverStep computes the server operations of the domain operation on
// the local host and assembles the aggregate response.
type ServerOperationsResolverStep struct {
	LocalHostName  string
	Resolver       domain.OperationResolver
	ParsedOp       ParsedOp
	Response       *Response
	RecordResponse bool
}

// Execute implements pipeline.Step. It never fails the pipeline itself; failures are
// recorded in the Response and, when recording, copied to oc.
func (s *ServerOperationsResolverStep) Execute(_ context.Context, oc *pipeline.OperationContext) error {
	defer oc.CompleteStep()

	if s.Response.HasFailure() {
		if s.RecordResponse {
			oc.SetFailureDescription(s.Response.FailureDescription)
		}
		return nil
	}

	ops, err := s.resolve(oc)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - resolution failed: %v", stepsLogPrefix, err))
		s.Response.SetFailure(err.Error())
		if s.RecordResponse {
			oc.SetFailureDescription(s.Response.FailureDescription)
		}
		return nil
	}

	overall := NewOverallResult(s.ParsedOp.FormattedDomainResult(s.Response.DomainResults), ops)
	s.Response.Succeed(overall, ops)
	if s.RecordResponse {
		oc.SetResult(overall)
	}
	return nil
}

func (s *ServerOperationsResolverStep) resolve(oc *pipeline.OperationContext) (domain.ServerOperations, error) {
	domainModel, err := oc.ReadModel(address.EmptyAddress)
	if err != nil {
		return nil, err
	}
	root := oc.RootRegistration()

	lookup := func(op model.Node, addr address.PathAddress) (registry.OperationEntry, bool, error) {
		entry, err := root.LookupOperation(addr, model.OperationName(op))
		if err != nil {
			return registry.OperationEntry{}, false, err
		}
		return entry, fansOut(entry), nil
	}

	top := s.ParsedOp.Operation()
	if _, ok, err := lookup(top, s.ParsedOp.Address()); err != nil || !ok {
		return domain.ServerOperations{}, err
	}

	hosts, _ := model.Child(domainModel, domain.KeyHost)
	hostModel, _ := model.Child(hosts, s.LocalHostName)

	provider := func(op model.Node, addr address.PathAddress) (domain.ServerOperations, error) {
		entry, ok, err := lookup(op, addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return domain.ServerOperations{}, nil
		}
		ops, err := s.Resolver.ServerOperations(op, addr, domainModel, hostModel)
		if err != nil {
			return nil, err
		}
		if len(ops) == 0 && entry.Flags.Has(registry.DomainPushToServers) {
			if pusher, ok := s.Resolver.(domain.ServerPusher); ok {
				if ops, err = pusher.PushToServers(op, addr, domainModel, hostModel); err != nil {
					return nil, err
				}
			}
		}
		if err := ops.Validate(); err != nil {
			return nil, err
		}
		return regroup(ops)
	}

	ops, err := s.ParsedOp.ServerOps(provider)
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = domain.ServerOperations{}
	}
	return ops, nil
}

// fansOut reports whether entry's operation reaches the local servers. Proxied subtrees
// belong to another controller.
func fansOut(entry registry.OperationEntry) bool {
	if entry.Proxied {
		return false
	}
	return !entry.Flags.Has(registry.ReadOnly) &&
		!entry.Flags.Has(registry.HostControllerOnly) &&
		!entry.Flags.Has(registry.DeploymentUpload)
}

// regroup merges groups whose bodies are structurally equal.
func regroup(ops domain.ServerOperations) (domain.ServerOperations, error) {
	grouper := domain.NewGrouper()
	for _, group := range ops {
		for _, server := range group.Servers {
			if err := grouper.Add(server, group.Op); err != nil {
				return nil, err
			}
		}
	}
	return grouper.Result(), nil
}
