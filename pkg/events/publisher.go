package events

import "context"

// EventPublisher is the interface for publishing resolution events.
type EventPublisher interface {
	PublishResolved(ctx context.Context, event *ResolutionEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishResolved is a no-op.
func (p *NoOpPublisher) PublishResolved(_ context.Context, _ *ResolutionEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ResolutionEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ResolutionEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishResolved calls the callback.
func (p *CallbackPublisher) PublishResolved(ctx context.Context, event *ResolutionEvent) error {
	return p.callback(ctx, event)
}
