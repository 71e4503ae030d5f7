package coordination

import (
	"github.com/morezero/domain-controller/pkg/domain"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/pipeline"
)

// ServerRef names one server inside a server-operations entry.
type ServerRef struct {
	ServerName      string `json:"server-name"`
	ServerGroupName string `json:"server-group-name"`
}

// ServerOperationSet is one entry of server-operations.
type ServerOperationSet struct {
	Servers []ServerRef `json:"servers"`
	Op      model.Node  `json:"op"`
}

// OverallResult is the aggregate result of a resolved domain operation.
type OverallResult struct {
	DomainResults    interface{}          `json:"domain-results"`
	ServerOperations []ServerOperationSet `json:"server-operations"`
}

// NewOverallResult renders resolved server operations in response form.
func NewOverallResult(domainResults interface{}, ops domain.ServerOperations) *OverallResult {
	sets := make([]ServerOperationSet, 0, len(ops))
	for _, group := range ops {
		refs := make([]ServerRef, 0, len(group.Servers))
		for _, s := range group.Servers {
			refs = append(refs, ServerRef{ServerName: s.ServerName, ServerGroupName: s.ServerGroupName})
		}
		sets = append(sets, ServerOperationSet{Servers: refs, Op: group.Op})
	}
	return &OverallResult{DomainResults: domainResults, ServerOperations: sets}
}

// Response is the aggregate response shared by the steps of one domain operation.
type Response struct {
	Outcome            string         `json:"outcome,omitempty"`
	Result             *OverallResult `json:"result,omitempty"`
	FailureDescription string         `json:"failure-description,omitempty"`

	// DomainResults holds one result per executed domain step.
	DomainResults []interface{} `json:"-"`
	// ServerOperations is the resolved mapping behind Result.
	ServerOperations domain.ServerOperations `json:"-"`
}

// HasFailure reports whether a failure has been recorded.
func (r *Response) HasFailure() bool {
	return r.FailureDescription != ""
}

// SetFailure records a failure unless one is already present.
func (r *Response) SetFailure(desc string) {
	if r.HasFailure() {
		return
	}
	r.Outcome = pipeline.OutcomeFailed
	r.FailureDescription = desc
	r.Result = nil
}

// Succeed records the aggregate result.
func (r *Response) Succeed(result *OverallResult, ops domain.ServerOperations) {
	r.Outcome = pipeline.OutcomeSuccess
	r.Result = result
	r.ServerOperations = ops
}
