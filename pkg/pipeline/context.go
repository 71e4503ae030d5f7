// Package pipeline runs an operation as an ordered list of cooperative steps.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/registry"
)

const logPrefix = "pipeline:context"

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Step is one unit of work. Every step must call CompleteStep exactly once.
type Step interface {
	Execute(ctx context.Context, oc *OperationContext) error
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, oc *OperationContext) error

// Execute calls f.
func (f StepFunc) Execute(ctx context.Context, oc *OperationContext) error {
	return f(ctx, oc)
}

// Result is the outcome of a pipeline run.
type Result struct {
	Outcome            string      `json:"outcome"`
	Result             interface{} `json:"result,omitempty"`
	FailureDescription string      `json:"failure-description,omitempty"`
}

// OperationContext carries one invocation through its steps. It is not safe for concurrent use;
// steps run one at a time.
type OperationContext struct {
	root      *registry.NodeRegistration
	snapshot  model.Node
	operation model.Node

	steps     []Step
	current   int
	completed bool

	result     interface{}
	hasResult  bool
	failure    string
	hasFailure bool
}

// NewOperationContext creates a context over a model snapshot. The snapshot is read-only
// for the lifetime of the invocation.
func NewOperationContext(root *registry.NodeRegistration, snapshot model.Node, operation model.Node) *OperationContext {
	if snapshot == nil {
		snapshot = model.Node{}
	}
	return &OperationContext{root: root, snapshot: snapshot, operation: operation}
}

// Operation returns the operation body being executed.
func (oc *OperationContext) Operation() model.Node {
	return oc.operation
}

// AddStep appends a step. Steps may add further steps while running.
func (oc *OperationContext) AddStep(step Step) {
	oc.steps = append(oc.steps, step)
}

// RootRegistration returns the root of the registry.
func (oc *OperationContext) RootRegistration() *registry.NodeRegistration {
	return oc.root
}

// ReadModel returns the snapshot subtree at addr.
func (oc *OperationContext) ReadModel(addr address.PathAddress) (model.Node, error) {
	n, ok := model.Navigate(oc.snapshot, addr)
	if !ok {
		return nil, &registry.RegistryError{Code: registry.CodeNotFound, Message: fmt.Sprintf("no resource at %s", addr)}
	}
	return n, nil
}

// SetResult records the invocation result.
func (oc *OperationContext) SetResult(v interface{}) {
	oc.result = v
	oc.hasResult = true
}

// GetResult returns the recorded result.
func (oc *OperationContext) GetResult() (interface{}, bool) {
	return oc.result, oc.hasResult
}

// SetFailureDescription records a failure. The first failure wins.
func (oc *OperationContext) SetFailureDescription(desc string) {
	if oc.hasFailure {
		slog.Debug(fmt.Sprintf("%s - keeping failure %q, dropping %q", logPrefix, oc.failure, desc))
		return
	}
	oc.failure = desc
	oc.hasFailure = true
}

// GetFailureDescription returns the recorded failure.
func (oc *OperationContext) GetFailureDescription() (string, bool) {
	return oc.failure, oc.hasFailure
}

// CompleteStep hands control to the next step.
func (oc *OperationContext) CompleteStep() {
	if oc.completed {
		slog.Warn(fmt.Sprintf("%s - step %d completed more than once", logPrefix, oc.current))
		return
	}
	oc.completed = true
}

// Run executes the steps in order until they are exhausted, one fails to complete,
// or ctx is cancelled.
func (oc *OperationContext) Run(ctx context.Context) *Result {
	for oc.current = 0; oc.current < len(oc.steps); oc.current++ {
		if err := ctx.Err(); err != nil {
			oc.SetFailureDescription(fmt.Sprintf("operation cancelled: %v", err))
			break
		}

		oc.completed = false
		if err := oc.steps[oc.current].Execute(ctx, oc); err != nil {
			oc.SetFailureDescription(err.Error())
		}
		if !oc.completed {
			oc.SetFailureDescription(fmt.Sprintf("step %d did not complete", oc.current))
			break
		}
	}
	return oc.Response()
}

// Response renders the current outcome.
func (oc *OperationContext) Response() *Result {
	if oc.hasFailure {
		return &Result{Outcome: OutcomeFailed, FailureDescription: oc.failure}
	}
	return &Result{Outcome: OutcomeSuccess, Result: oc.result}
}
