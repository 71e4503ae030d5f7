package tracing

// Span attribute keys used by the controller.
const (
	AttrRequestID      = "request.id"
	AttrMethod         = "request.method"
	AttrOperationName  = "operation.name"
	AttrOperationAddr  = "operation.address"
	AttrHostName       = "host.name"
	AttrOutcome        = "operation.outcome"
	AttrServerGroups   = "server_operations.groups"
	AttrServerCount    = "server_operations.servers"
	AttrProxyTarget    = "proxy.host"
	AttrErrorMessage   = "error.message"
	AttrFailureMessage = "operation.failure"
)

// Span names.
const (
	SpanDispatch  = "dispatcher.handle"
	SpanExecute   = "coordinator.execute"
	SpanProxy     = "dispatcher.proxy"
	SpanPublish   = "events.publish"
	SpanAuditSave = "db.record_resolution"
)
