// Package dispatcher routes incoming COMMS messages to the domain controller.
package dispatcher

import (
	"encoding/json"

	"github.com/morezero/domain-controller/pkg/model"
)

// Request methods.
const (
	MethodExecute  = "execute"
	MethodDescribe = "describe"
	MethodHealth   = "health"
)

// ControllerRequest is the JSON envelope for incoming COMMS controller requests.
type ControllerRequest struct {
	ID        string             `json:"id"`
	Method    string             `json:"method"`
	Operation model.Node         `json:"operation,omitempty"`
	Params    json.RawMessage    `json:"params,omitempty"`
	Ctx       *InvocationContext `json:"ctx,omitempty"`
}

// ControllerResponse is the JSON envelope for COMMS controller responses.
type ControllerResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	// ManagementVersion constrains the served management version ("1", "^1.2", "1.0.0").
	ManagementVersion string `json:"managementVersion,omitempty"`
	TimeoutMs         int    `json:"timeoutMs,omitempty"`
	// ForwardedFrom names the controller that proxied this request.
	ForwardedFrom string `json:"forwardedFrom,omitempty"`
}

// DescribeParams are the params of a describe request.
type DescribeParams struct {
	Address string `json:"address"`
	Locale  string `json:"locale,omitempty"`
}

// HealthOutput is the result of a health request.
type HealthOutput struct {
	Status            string       `json:"status"`
	Host              string       `json:"host"`
	ManagementVersion string       `json:"managementVersion"`
	Checks            HealthChecks `json:"checks"`
	Timestamp         string       `json:"timestamp"`
}

// HealthChecks reports individual dependency checks. Unconfigured dependencies report true.
type HealthChecks struct {
	DomainModel bool `json:"domainModel"`
	Database    bool `json:"database"`
	Comms       bool `json:"comms"`
}
