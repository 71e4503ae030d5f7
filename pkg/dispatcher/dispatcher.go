package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/domain-controller/internal/tracing"
	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/coordination"
	"github.com/morezero/domain-controller/pkg/db"
	"github.com/morezero/domain-controller/pkg/domain"
	"github.com/morezero/domain-controller/pkg/events"
	"github.com/morezero/domain-controller/pkg/model"
	"github.com/morezero/domain-controller/pkg/pipeline"
	"github.com/morezero/domain-controller/pkg/registry"
	"github.com/morezero/domain-controller/pkg/semver"
)

const logPrefix = "dispatcher:dispatch"

// Error codes produced by the dispatcher itself.
const (
	CodeMethodNotFound      = "METHOD_NOT_FOUND"
	CodeIncompatibleVersion = "INCOMPATIBLE_VERSION"
	CodeHostUnavailable     = "HOST_UNAVAILABLE"
	CodeForwardingLoop      = "FORWARDING_LOOP"
)

// AuditRecorder stores one row per executed operation.
type AuditRecorder interface {
	RecordResolution(ctx context.Context, rec *db.ResolutionRecord) error
}

// Pinger checks a dependency's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dispatcher routes COMMS requests to the coordinator and the registry.
type Dispatcher struct {
	coordinator       *coordination.Coordinator
	publisher         events.EventPublisher
	audit             AuditRecorder
	database          Pinger
	commsConnected    func() bool
	tracer            trace.Tracer
	managementVersion string
	healthTimeout     time.Duration
}

// NewDispatcherParams holds parameters for NewDispatcher. Only Coordinator is required.
type NewDispatcherParams struct {
	Coordinator       *coordination.Coordinator
	Publisher         events.EventPublisher
	Audit             AuditRecorder
	Database          Pinger
	CommsConnected    func() bool
	Tracer            trace.Tracer
	ManagementVersion string
	HealthTimeout     time.Duration
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	d := &Dispatcher{
		coordinator:       params.Coordinator,
		publisher:         params.Publisher,
		audit:             params.Audit,
		database:          params.Database,
		commsConnected:    params.CommsConnected,
		tracer:            params.Tracer,
		managementVersion: params.ManagementVersion,
		healthTimeout:     params.HealthTimeout,
	}
	if d.publisher == nil {
		d.publisher = &events.NoOpPublisher{}
	}
	if d.tracer == nil {
		d.tracer = tracing.Disabled().Tracer()
	}
	if d.managementVersion == "" {
		d.managementVersion = "1.0.0"
	}
	if d.healthTimeout <= 0 {
		d.healthTimeout = 5 * time.Second
	}
	return d
}

// Dispatch routes a request to the appropriate handler and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *ControllerRequest) *ControllerResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	ctx, span := d.tracer.Start(ctx, tracing.SpanDispatch, trace.WithAttributes(
		attribute.String(tracing.AttrMethod, req.Method),
		attribute.String(tracing.AttrRequestID, req.ID),
	))
	defer span.End()

	if req.Ctx != nil {
		if err := semver.CheckCompatible(d.managementVersion, req.Ctx.ManagementVersion); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return errorResponse(req.ID, CodeIncompatibleVersion, err.Error(), false)
		}
	}

	switch req.Method {
	case MethodExecute:
		return d.handleExecute(ctx, req)
	case MethodDescribe:
		return d.handleDescribe(ctx, req)
	case MethodHealth:
		return &ControllerResponse{ID: req.ID, Ok: true, Result: d.Health(ctx)}
	default:
		return &ControllerResponse{
			ID: req.ID,
			Ok: false,
			Error: &ErrorDetail{
				Code:      CodeMethodNotFound,
				Message:   fmt.Sprintf("Unknown method: %s", req.Method),
				Retryable: false,
			},
		}
	}
}

func (d *Dispatcher) handleExecute(ctx context.Context, req *ControllerRequest) *ControllerResponse {
	if d.coordinator == nil {
		return errorResponse(req.ID, registry.CodeInternal, "coordinator not configured", true)
	}
	if req.Operation == nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Missing operation", false)
	}
	if req.Ctx != nil && req.Ctx.ForwardedFrom != "" {
		if addr, ok := d.proxiedTarget(req.Operation); ok {
			slog.Warn(fmt.Sprintf("%s - request %s from %s targets proxied %s", logPrefix, req.ID, req.Ctx.ForwardedFrom, addr))
			return errorResponse(req.ID, CodeForwardingLoop,
				fmt.Sprintf("%s is owned by another controller; request was already forwarded by %s", addr, req.Ctx.ForwardedFrom), false)
		}
	}

	requestID := requestIDOf(req)
	opName := model.OperationName(req.Operation)
	addrString := "/"
	if addr, err := model.OperationAddress(req.Operation); err == nil {
		addrString = addr.String()
	}

	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Ctx.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	ctx, span := d.tracer.Start(ctx, tracing.SpanExecute, trace.WithAttributes(
		attribute.String(tracing.AttrRequestID, requestID),
		attribute.String(tracing.AttrOperationName, opName),
		attribute.String(tracing.AttrOperationAddr, addrString),
		attribute.String(tracing.AttrHostName, d.coordinator.LocalHostName()),
	))
	defer span.End()

	outcome := d.coordinator.Execute(ctx, req.Operation)
	span.SetAttributes(attribute.String(tracing.AttrOutcome, outcome.Result.Outcome))

	if outcome.Result.Outcome == pipeline.OutcomeFailed {
		span.SetStatus(codes.Error, outcome.Result.FailureDescription)
		span.SetAttributes(attribute.String(tracing.AttrFailureMessage, outcome.Result.FailureDescription))
		slog.Info(fmt.Sprintf("%s - %s at %s failed: %s", logPrefix, opName, addrString, outcome.Result.FailureDescription))
	} else {
		ops := outcome.Response.ServerOperations
		span.SetAttributes(
			attribute.Int(tracing.AttrServerGroups, len(ops)),
			attribute.Int(tracing.AttrServerCount, len(ops.Servers())),
		)
		if len(ops) > 0 {
			d.publish(ctx, NewResolutionEvent(requestID, d.coordinator.LocalHostName(), req.Operation, ops))
		}
	}

	d.record(ctx, req, requestID, opName, addrString, outcome)

	return &ControllerResponse{ID: req.ID, Ok: true, Result: outcome.Result}
}

// proxiedTarget returns the first address of op, or of its composite steps, that this
// controller would forward to another one.
func (d *Dispatcher) proxiedTarget(op model.Node) (address.PathAddress, bool) {
	parsed, err := coordination.ParseOperation(op)
	if err != nil {
		return address.EmptyAddress, false
	}
	root := d.coordinator.Root()
	for _, step := range parsed.DomainSteps() {
		addr, err := model.OperationAddress(step)
		if err != nil {
			continue
		}
		entry, err := root.LookupOperation(addr, model.OperationName(step))
		if err == nil && entry.Proxied {
			return addr, true
		}
	}
	return address.EmptyAddress, false
}

func (d *Dispatcher) handleDescribe(ctx context.Context, req *ControllerRequest) *ControllerResponse {
	if d.coordinator == nil {
		return errorResponse(req.ID, registry.CodeInternal, "coordinator not configured", true)
	}
	var params DescribeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse describe params", false)
		}
	}

	out, err := d.Describe(params)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &ControllerResponse{ID: req.ID, Ok: true, Result: out}
}

// Describe returns the registration metadata at params.Address.
func (d *Dispatcher) Describe(params DescribeParams) (*registry.DescribeOutput, error) {
	addr := address.EmptyAddress
	if params.Address != "" {
		parsed, err := address.Parse(params.Address)
		if err != nil {
			return nil, &registry.RegistryError{Code: registry.CodeInvalidArgument, Message: err.Error()}
		}
		addr = parsed
	}
	return d.coordinator.Root().Describe(addr, params.Locale)
}

// Health checks the domain model store and any configured database and COMMS connection.
func (d *Dispatcher) Health(ctx context.Context) *HealthOutput {
	ctx, cancel := context.WithTimeout(ctx, d.healthTimeout)
	defer cancel()

	checks := HealthChecks{DomainModel: true, Database: true, Comms: true}
	host := ""
	if d.coordinator != nil {
		host = d.coordinator.LocalHostName()
		if _, err := d.coordinator.Store().Load(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - domain model health check failed: %v", logPrefix, err))
			checks.DomainModel = false
		}
	} else {
		checks.DomainModel = false
	}
	if d.database != nil {
		if err := d.database.Ping(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - database health check failed: %v", logPrefix, err))
			checks.Database = false
		}
	}
	if d.commsConnected != nil {
		checks.Comms = d.commsConnected()
	}

	status := "healthy"
	if !checks.DomainModel || !checks.Database || !checks.Comms {
		status = "unhealthy"
	}
	return &HealthOutput{
		Status:            status,
		Host:              host,
		ManagementVersion: d.managementVersion,
		Checks:            checks,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}
}

func (d *Dispatcher) publish(ctx context.Context, event *events.ResolutionEvent) {
	ctx, span := d.tracer.Start(ctx, tracing.SpanPublish)
	defer span.End()
	if err := d.publisher.PublishResolved(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Warn(fmt.Sprintf("%s - failed to publish resolution %s: %v", logPrefix, event.RequestID, err))
	}
}

func (d *Dispatcher) record(ctx context.Context, req *ControllerRequest, requestID, opName, addr string, outcome *coordination.Outcome) {
	if d.audit == nil {
		return
	}
	ctx, span := d.tracer.Start(ctx, tracing.SpanAuditSave)
	defer span.End()

	rec := &db.ResolutionRecord{
		RequestID: requestID,
		Host:      d.coordinator.LocalHostName(),
		Operation: opName,
		Address:   addr,
		Outcome:   outcome.Result.Outcome,
	}
	if req.Ctx != nil {
		rec.UserID = req.Ctx.UserID
	}
	if outcome.Result.FailureDescription != "" {
		desc := outcome.Result.FailureDescription
		rec.FailureDescription = &desc
	}
	if outcome.Response.Result != nil {
		if data, err := json.Marshal(outcome.Response.Result.ServerOperations); err == nil {
			rec.ServerOperations = data
		}
	}
	if err := d.audit.RecordResolution(ctx, rec); err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Warn(fmt.Sprintf("%s - failed to record resolution %s: %v", logPrefix, requestID, err))
	}
}

// NewResolutionEvent builds the event published for a resolved operation.
func NewResolutionEvent(requestID, host string, op model.Node, ops domain.ServerOperations) *events.ResolutionEvent {
	addr := "/"
	if a, err := model.OperationAddress(op); err == nil {
		addr = a.String()
	}
	groups := make([]events.ServerGroupEvent, 0, len(ops))
	for _, g := range ops {
		names := make([]string, 0, len(g.Servers))
		for _, s := range g.Servers {
			names = append(names, s.String())
		}
		groups = append(groups, events.ServerGroupEvent{Servers: names, Op: g.Op})
	}
	return &events.ResolutionEvent{
		RequestID:    requestID,
		Host:         host,
		Operation:    model.OperationName(op),
		Address:      addr,
		ServerGroups: groups,
		Timestamp:    events.Now(),
	}
}

// --- helpers ---

func requestIDOf(req *ControllerRequest) string {
	if req.Ctx != nil && req.Ctx.RequestID != "" {
		return req.Ctx.RequestID
	}
	if req.ID != "" {
		return req.ID
	}
	return uuid.NewString()
}

func errorResponse(id, code, message string, retryable bool) *ControllerResponse {
	return &ControllerResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func registryErrorToResponse(id string, err error) *ControllerResponse {
	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		return &ControllerResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      regErr.Code,
				Message:   regErr.Message,
				Details:   regErr.Details,
				Retryable: regErr.Code == registry.CodeInternal,
			},
		}
	}
	return errorResponse(id, registry.CodeInternal, err.Error(), true)
}
