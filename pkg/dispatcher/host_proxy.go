package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/domain-controller/internal/tracing"
	"github.com/morezero/domain-controller/pkg/commsutil"
	"github.com/morezero/domain-controller/pkg/pipeline"
	"github.com/morezero/domain-controller/pkg/registry"
)

const proxyLogPrefix = "dispatcher:host_proxy"

// HostProxy forwards operations addressed under a remote host to that host's controller.
type HostProxy struct {
	nc        *comms.Conn
	host      string
	subject   string
	localHost string
	timeout   time.Duration
	tracer    trace.Tracer
}

var _ registry.OperationHandler = (*HostProxy)(nil)

// Host returns the remote host name.
func (p *HostProxy) Host() string {
	return p.host
}

// Subject returns the subject requests are sent to.
func (p *HostProxy) Subject() string {
	return p.subject
}

// Execute sends the operation to the remote controller and returns its domain result.
func (p *HostProxy) Execute(ctx context.Context, op *registry.Operation) (interface{}, error) {
	slog.Debug(fmt.Sprintf("%s - Forwarding %s at %s to %s", proxyLogPrefix, op.Name, op.Address, p.host))

	ctx, span := p.tracer.Start(ctx, tracing.SpanProxy, trace.WithAttributes(
		attribute.String(tracing.AttrProxyTarget, p.host),
		attribute.String(tracing.AttrOperationName, op.Name),
	))
	defer span.End()

	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req := &ControllerRequest{
		ID:        "fwd-" + uuid.NewString(),
		Method:    MethodExecute,
		Operation: op.Body,
		Ctx:       &InvocationContext{ForwardedFrom: p.localHost},
	}

	var resp struct {
		Ok     bool             `json:"ok"`
		Result *pipeline.Result `json:"result"`
		Error  *ErrorDetail     `json:"error,omitempty"`
	}
	if err := commsutil.Request(ctx, p.nc, p.subject, req, &resp); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &registry.RegistryError{
			Code:    CodeHostUnavailable,
			Message: fmt.Sprintf("host %s did not respond: %v", p.host, err),
		}
	}
	if !resp.Ok {
		code, message := registry.CodeInternal, "remote execute failed"
		if resp.Error != nil {
			code, message = resp.Error.Code, resp.Error.Message
		}
		span.SetStatus(codes.Error, message)
		return nil, &registry.RegistryError{Code: code, Message: fmt.Sprintf("host %s: %s", p.host, message)}
	}
	if resp.Result == nil {
		return nil, nil
	}
	if resp.Result.Outcome == pipeline.OutcomeFailed {
		span.SetStatus(codes.Error, resp.Result.FailureDescription)
		return nil, fmt.Errorf("host %s: %s", p.host, resp.Result.FailureDescription)
	}
	return resp.Result.Result, nil
}

// ProxyPool hands out one HostProxy per remote host over a shared COMMS connection.
type ProxyPool struct {
	mu        sync.RWMutex
	proxies   map[string]*HostProxy
	nc        *comms.Conn
	localHost string
	timeout   time.Duration
	tracer    trace.Tracer
}

// NewProxyPool creates a new proxy pool.
func NewProxyPool(nc *comms.Conn, localHost string, timeout time.Duration, tracer trace.Tracer) *ProxyPool {
	if tracer == nil {
		tracer = tracing.Disabled().Tracer()
	}
	return &ProxyPool{
		proxies:   make(map[string]*HostProxy),
		nc:        nc,
		localHost: localHost,
		timeout:   timeout,
		tracer:    tracer,
	}
}

// Proxy returns the proxy for host, creating it on first use. An empty subject uses the
// host's default controller subject.
func (pp *ProxyPool) Proxy(host, subject string) *HostProxy {
	pp.mu.RLock()
	if p, ok := pp.proxies[host]; ok {
		pp.mu.RUnlock()
		return p
	}
	pp.mu.RUnlock()

	pp.mu.Lock()
	defer pp.mu.Unlock()

	if p, ok := pp.proxies[host]; ok {
		return p
	}
	if subject == "" {
		subject = commsutil.BuildHostSubject(host)
	}
	p := &HostProxy{
		nc:        pp.nc,
		host:      host,
		subject:   subject,
		localHost: pp.localHost,
		timeout:   pp.timeout,
		tracer:    pp.tracer,
	}
	pp.proxies[host] = p
	slog.Info(fmt.Sprintf("%s - Proxying host=%s via %s", proxyLogPrefix, host, subject))
	return p
}

// Hosts returns the proxied host names.
func (pp *ProxyPool) Hosts() []string {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	out := make([]string, 0, len(pp.proxies))
	for h := range pp.proxies {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
