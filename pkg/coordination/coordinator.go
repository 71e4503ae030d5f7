package coordination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/domain-controller/pkg/domain"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/pipeline"
	"github.com/morezero/domain-controller/pkg/registry"
)

const logPrefix = "coordination:coordinator"

// Coordinator runs domain operations through the domain and resolution steps.
type Coordinator struct {
	root          *registry.NodeRegistration
	store         model.Store
	resolver      domain.OperationResolver
	localHostName string
}

// NewCoordinatorParams holds parameters for NewCoordinator.
type NewCoordinatorParams struct {
	Root          *registry.NodeRegistration
	Store         model.Store
	Resolver      domain.OperationResolver
	LocalHostName string
}

// NewCoordinator creates a Coordinator. A nil Resolver uses the default host policy.
func NewCoordinator(params NewCoordinatorParams) *Coordinator {
	resolver := params.Resolver
	if resolver == nil {
		resolver = domain.NewHostResolver(params.LocalHostName)
	}
	return &Coordinator{
		root:          params.Root,
		store:         params.Store,
		resolver:      resolver,
		localHostName: params.LocalHostName,
	}
}

// Root returns the registry root.
func (c *Coordinator) Root() *registry.NodeRegistration {
	return c.root
}

// Store returns the domain model store.
func (c *Coordinator) Store() model.Store {
	return c.store
}

// LocalHostName returns the host whose servers are resolved.
func (c *Coordinator) LocalHostName() string {
	return c.localHostName
}

// Outcome is the result of Execute: the pipeline result and the aggregate response behind it.
type Outcome struct {
	Result   *pipeline.Result
	Response *Response
}

// Execute runs op against one snapshot of the domain model.
func (c *Coordinator) Execute(ctx context.Context, op model.Node) *Outcome {
	slog.Debug(fmt.Sprintf("%s - operation=%s", logPrefix, model.OperationName(op)))

	parsed, err := ParseOperation(op)
	if err != nil {
		return failedOutcome(err.Error())
	}

	snapshot, err := c.store.Load(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to load domain model: %v", logPrefix, err))
		return failedOutcome(fmt.Sprintf("failed to load domain model: %v", err))
	}

	resp := &Response{}
	oc := pipeline.NewOperationContext(c.root, snapshot, op)
	oc.AddStep(&DomainStep{ParsedOp: parsed, Response: resp})
	oc.AddStep(&ServerOperationsResolverStep{
		LocalHostName:  c.localHostName,
		Resolver:       c.resolver,
		ParsedOp:       parsed,
		Response:       resp,
		RecordResponse: true,
	})

	return &Outcome{Result: oc.Run(ctx), Response: resp}
}

func failedOutcome(desc string) *Outcome {
	resp := &Response{}
	resp.SetFailure(desc)
	return &Outcome{
		Result:   &pipeline.Result{Outcome: pipeline.OutcomeFailed, FailureDescription: desc},
		Response: resp,
	}
}
