// Package coordination turns one domain operation into its domain result and server operations.
package coordination

import (
	"fmt"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/domain"
	"github.com/morezero/domain-controller/pkg/model"
)

const parsedOpLogPrefix = "coordination:parsed_op"

// CompositeOperation is the name of the operation that bundles steps.
const CompositeOperation = "composite"

// ServerOperationProvider computes the server operations of a single (non-composite) operation.
type ServerOperationProvider func(op model.Node, addr address.PathAddress) (domain.ServerOperations, error)

// ParsedOp is a parsed domain operation.
type ParsedOp interface {
	Address() address.PathAddress
	Operation() model.Node
	// DomainSteps lists the single operations executed at the domain level, in order.
	DomainSteps() []model.Node
	// ServerOps returns the grouped server operations using provider for each single operation.
	ServerOps(provider ServerOperationProvider) (domain.ServerOperations, error)
	// FormattedDomainResult shapes the results of DomainSteps, one per step, for the response.
	FormattedDomainResult(results []interface{}) interface{}
}

// ParseOperation parses a single or composite operation body.
func ParseOperation(op model.Node) (ParsedOp, error) {
	name := model.OperationName(op)
	if name == "" {
		return nil, fmt.Errorf("%s - operation name is required", parsedOpLogPrefix)
	}
	addr, err := model.OperationAddress(op)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid address: %w", parsedOpLogPrefix, err)
	}

	if name != CompositeOperation {
		return &singleOp{addr: addr, op: op}, nil
	}

	steps, err := model.Steps(op)
	if err != nil {
		return nil, err
	}
	children := make([]ParsedOp, 0, len(steps))
	for i, step := range steps {
		child, err := ParseOperation(step)
		if err != nil {
			return nil, fmt.Errorf("%s - step-%d: %w", parsedOpLogPrefix, i+1, err)
		}
		children = append(children, child)
	}
	return &compositeOp{addr: addr, op: op, children: children}, nil
}

type singleOp struct {
	addr address.PathAddress
	op   model.Node
}

func (s *singleOp) Address() address.PathAddress { return s.addr }
func (s *singleOp) Operation() model.Node        { return s.op }
func (s *singleOp) DomainSteps() []model.Node    { return []model.Node{s.op} }

func (s *singleOp) ServerOps(provider ServerOperationProvider) (domain.ServerOperations, error) {
	return provider(s.op, s.addr)
}

func (s *singleOp) FormattedDomainResult(results []interface{}) interface{} {
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

type compositeOp struct {
	addr     address.PathAddress
	op       model.Node
	children []ParsedOp
}

func (c *compositeOp) Address() address.PathAddress { return c.addr }
func (c *compositeOp) Operation() model.Node        { return c.op }

func (c *compositeOp) DomainSteps() []model.Node {
	var out []model.Node
	for _, child := range c.children {
		out = append(out, child.DomainSteps()...)
	}
	return out
}

// ServerOps resolves every step, then gives each server one body: the bare step when the
// server runs a single step, otherwise a composite of its steps in order.
func (c *compositeOp) ServerOps(provider ServerOperationProvider) (domain.ServerOperations, error) {
	perServer := map[domain.ServerIdentity][]interface{}{}
	var order []domain.ServerIdentity

	for i, child := range c.children {
		ops, err := child.ServerOps(provider)
		if err != nil {
			return nil, fmt.Errorf("step-%d: %w", i+1, err)
		}
		for _, group := range ops {
			for _, server := range group.Servers {
				if _, ok := perServer[server]; !ok {
					order = append(order, server)
				}
				perServer[server] = append(perServer[server], group.Op)
			}
		}
	}

	grouper := domain.NewGrouper()
	for _, server := range order {
		steps := perServer[server]
		var body model.Node
		if len(steps) == 1 {
			body = steps[0].(model.Node)
		} else {
			body = model.Node{
				model.KeyOperation: CompositeOperation,
				model.KeyAddress:   []interface{}{},
				model.KeySteps:     steps,
			}
		}
		if err := grouper.Add(server, body); err != nil {
			return nil, err
		}
	}
	return grouper.Result(), nil
}

// FormattedDomainResult keys each step result as step-N.
func (c *compositeOp) FormattedDomainResult(results []interface{}) interface{} {
	out := model.Node{}
	offset := 0
	for i, child := range c.children {
		n := len(child.DomainSteps())
		end := offset + n
		if end > len(results) {
			end = len(results)
		}
		var childResults []interface{}
		if offset < end {
			childResults = results[offset:end]
		}
		out[fmt.Sprintf("step-%d", i+1)] = child.FormattedDomainResult(childResults)
		offset = end
	}
	return out
}
