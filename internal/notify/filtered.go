package notify

import "context"

// Filtered wraps a Sink and only forwards events whose type matches the
// allowed set. If the allowed set is empty, all events pass through.
type Filtered struct {
	inner   Sink
	allowed map[EventType]struct{}
}

// NewFiltered creates a sink that only forwards events matching the given
// event types. An empty or nil list means all events are forwarded.
func NewFiltered(inner Sink, events []EventType) *Filtered {
	allowed := make(map[EventType]struct{}, len(events))
	for _, e := range events {
		allowed[e] = struct{}{}
	}
	return &Filtered{inner: inner, allowed: allowed}
}

// Name returns the name of the wrapped sink.
func (f *Filtered) Name() string { return f.inner.Name() }

// Send forwards the event to the inner sink only if the event type is in
// the allowed set.
func (f *Filtered) Send(ctx context.Context, event Event) error {
	if len(f.allowed) > 0 {
		if _, ok := f.allowed[event.Type]; !ok {
			return nil
		}
	}
	return f.inner.Send(ctx, event)
}
